package mesh

// Bcast sends payload from root to every other rank and returns it on all
// ranks. Non-root ranks ignore their payload argument.
func Bcast(c Comm, root int, tag Tag, payload []byte) ([]byte, error) {
	if err := checkRank(c, root); err != nil {
		return nil, err
	}
	if c.Rank() != root {
		return c.Recv(root, tag)
	}
	for r := 0; r < c.Size(); r++ {
		if r == root {
			continue
		}
		if err := c.Send(r, tag, payload); err != nil {
			return nil, err
		}
	}
	return payload, nil
}

// Gather collects one payload per rank on root, indexed by rank. Every other
// rank gets a nil slice back.
func Gather(c Comm, root int, tag Tag, payload []byte) ([][]byte, error) {
	if err := checkRank(c, root); err != nil {
		return nil, err
	}
	if c.Rank() != root {
		return nil, c.Send(root, tag, payload)
	}
	out := make([][]byte, c.Size())
	for r := range out {
		if r == root {
			out[r] = payload
			continue
		}
		b, err := c.Recv(r, tag)
		if err != nil {
			return nil, err
		}
		out[r] = b
	}
	return out, nil
}

// Allgather returns every rank's payload on every rank, indexed by rank.
func Allgather(c Comm, tag Tag, payload []byte) ([][]byte, error) {
	for r := 0; r < c.Size(); r++ {
		if r == c.Rank() {
			continue
		}
		if err := c.Send(r, tag, payload); err != nil {
			return nil, err
		}
	}
	out := make([][]byte, c.Size())
	for r := range out {
		if r == c.Rank() {
			out[r] = payload
			continue
		}
		b, err := c.Recv(r, tag)
		if err != nil {
			return nil, err
		}
		out[r] = b
	}
	return out, nil
}

// Alltoall sends payloads[r] to rank r and returns what every rank sent to
// this one, indexed by source. The entry for this rank is passed through.
func Alltoall(c Comm, tag Tag, payloads [][]byte) ([][]byte, error) {
	if len(payloads) != c.Size() {
		return nil, ErrBadCount
	}
	for r, p := range payloads {
		if r == c.Rank() {
			continue
		}
		if err := c.Send(r, tag, p); err != nil {
			return nil, err
		}
	}
	out := make([][]byte, c.Size())
	for r := range out {
		if r == c.Rank() {
			out[r] = payloads[r]
			continue
		}
		b, err := c.Recv(r, tag)
		if err != nil {
			return nil, err
		}
		out[r] = b
	}
	return out, nil
}
