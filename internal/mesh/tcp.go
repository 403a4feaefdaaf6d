package mesh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

// maxFrame bounds a single payload so a corrupt header cannot trigger a huge
// allocation.
const maxFrame = 1 << 30

// DialTimeout bounds how long a rank keeps retrying its lower-ranked peers
// during startup. Once the mesh is up there are no timeouts.
var DialTimeout = 2 * time.Minute

type tcpPeer struct {
	conn net.Conn
	wmu  sync.Mutex
}

type tcpComm struct {
	rank  int
	peers []*tcpPeer
	boxes []*inbox
	ln    net.Listener
	log   logrus.FieldLogger
	once  sync.Once
}

// ListenTCP joins a fully connected TCP mesh. addrs[i] is the listen address
// of rank i; every rank must be started with the same list. Lower ranks
// accept connections from higher ranks, which dial with exponential backoff
// until the peer is up.
func ListenTCP(rank int, addrs []string, log logrus.FieldLogger) (Comm, error) {
	n := len(addrs)
	if rank < 0 || rank >= n {
		return nil, fmt.Errorf("%w: %d (size %d)", ErrBadRank, rank, n)
	}
	c := &tcpComm{
		rank:  rank,
		peers: make([]*tcpPeer, n),
		boxes: make([]*inbox, n),
		log:   log.WithField("rank", rank),
	}
	for i := range c.boxes {
		c.boxes[i] = newInbox()
	}

	ln, err := net.Listen("tcp", addrs[rank])
	if err != nil {
		return nil, fmt.Errorf("mesh: listen %s: %w", addrs[rank], err)
	}
	c.ln = ln

	accepted := make(chan error, 1)
	go func() { accepted <- c.acceptHigher(n) }()

	for peer := 0; peer < rank; peer++ {
		if err := c.dial(peer, addrs[peer]); err != nil {
			c.Close()
			return nil, err
		}
	}
	if err := <-accepted; err != nil {
		c.Close()
		return nil, err
	}

	for peer, p := range c.peers {
		if p != nil {
			go c.readLoop(peer, p.conn)
		}
	}
	c.log.WithField("size", n).Info("mesh connected")
	return c, nil
}

func (c *tcpComm) acceptHigher(n int) error {
	for want := n - 1 - c.rank; want > 0; want-- {
		conn, err := c.ln.Accept()
		if err != nil {
			return fmt.Errorf("mesh: accept: %w", err)
		}
		var hello int32
		if err := binary.Read(conn, binary.LittleEndian, &hello); err != nil {
			conn.Close()
			return fmt.Errorf("mesh: handshake: %w", err)
		}
		peer := int(hello)
		if peer <= c.rank || peer >= n || c.peers[peer] != nil {
			conn.Close()
			return fmt.Errorf("mesh: unexpected handshake from rank %d", peer)
		}
		c.peers[peer] = &tcpPeer{conn: conn}
		c.log.WithField("peer", peer).Debug("accepted peer")
	}
	return nil
}

func (c *tcpComm) dial(peer int, addr string) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = DialTimeout

	var conn net.Conn
	err := backoff.RetryNotify(
		func() error {
			var err error
			conn, err = net.Dial("tcp", addr)
			return err
		},
		b,
		func(err error, d time.Duration) {
			c.log.WithFields(logrus.Fields{"peer": peer, "addr": addr, "retry_in": d}).
				WithError(err).Debug("peer not up yet")
		},
	)
	if err != nil {
		return fmt.Errorf("mesh: dial rank %d at %s: %w", peer, addr, err)
	}
	if err := binary.Write(conn, binary.LittleEndian, int32(c.rank)); err != nil {
		conn.Close()
		return fmt.Errorf("mesh: handshake with rank %d: %w", peer, err)
	}
	c.peers[peer] = &tcpPeer{conn: conn}
	return nil
}

func (c *tcpComm) readLoop(peer int, conn net.Conn) {
	var hdr [8]byte
	for {
		if _, err := io.ReadFull(conn, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				err = ErrClosed
			}
			c.boxes[peer].close(err)
			return
		}
		tag := Tag(int32(binary.LittleEndian.Uint32(hdr[0:4])))
		size := binary.LittleEndian.Uint32(hdr[4:8])
		if size > maxFrame {
			c.boxes[peer].close(fmt.Errorf("mesh: frame of %d bytes from rank %d", size, peer))
			return
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(conn, payload); err != nil {
			c.boxes[peer].close(err)
			return
		}
		c.boxes[peer].push(frame{tag: tag, payload: payload})
	}
}

func (c *tcpComm) Rank() int { return c.rank }
func (c *tcpComm) Size() int { return len(c.boxes) }

func (c *tcpComm) Send(dst int, tag Tag, payload []byte) error {
	if err := checkRank(c, dst); err != nil {
		return &TransferError{Rank: c.rank, Peer: dst, Tag: tag, Op: "send", Err: err}
	}
	if dst == c.rank {
		buf := make([]byte, len(payload))
		copy(buf, payload)
		c.boxes[dst].push(frame{tag: tag, payload: buf})
		return nil
	}
	p := c.peers[dst]
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:4], uint32(int32(tag)))
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(payload)))

	p.wmu.Lock()
	defer p.wmu.Unlock()
	if _, err := p.conn.Write(hdr[:]); err != nil {
		return &TransferError{Rank: c.rank, Peer: dst, Tag: tag, Op: "send", Err: err}
	}
	if _, err := p.conn.Write(payload); err != nil {
		return &TransferError{Rank: c.rank, Peer: dst, Tag: tag, Op: "send", Err: err}
	}
	return nil
}

func (c *tcpComm) Recv(src int, tag Tag) ([]byte, error) {
	if err := checkRank(c, src); err != nil {
		return nil, &TransferError{Rank: c.rank, Peer: src, Tag: tag, Op: "recv", Err: err}
	}
	f, err := c.boxes[src].pop()
	if err != nil {
		return nil, &TransferError{Rank: c.rank, Peer: src, Tag: tag, Op: "recv", Err: err}
	}
	return expect(c, src, tag, f)
}

func (c *tcpComm) Close() error {
	var err error
	c.once.Do(func() {
		if c.ln != nil {
			err = c.ln.Close()
		}
		for _, p := range c.peers {
			if p != nil {
				p.conn.Close()
			}
		}
		for _, q := range c.boxes {
			q.close(ErrClosed)
		}
	})
	return err
}
