package imap

import "fmt"

// TagGenerator hands out command tags for one session: A01, A02, ...
// The zero value is ready to use.
type TagGenerator struct {
	n int
}

func (g *TagGenerator) Next() string {
	g.n++
	return fmt.Sprintf("A%02d", g.n)
}
