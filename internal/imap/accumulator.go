package imap

import (
	"errors"
	"fmt"
	"io"

	"github.com/emersion/go-imap"
)

const DefaultChunkSize = 1024

// Receiver is the read half of a transport.
type Receiver interface {
	Receive(p []byte) (int, error)
}

// ResponseBlock is everything read for one command.
type ResponseBlock struct {
	Tag  string
	Data []byte
	// Last is the most recently read chunk.
	Last       []byte
	Terminated bool
	Resp       *imap.StatusResp

	end int
}

// Payload returns the bytes preceding the completing status line.
func (b *ResponseBlock) Payload() []byte {
	if !b.Terminated {
		return b.Data
	}
	return b.Data[:b.end]
}

// append copies p into the block, doubling capacity as needed.
func (b *ResponseBlock) append(p []byte) {
	if need := len(b.Data) + len(p); need > cap(b.Data) {
		c := cap(b.Data)
		if c == 0 {
			c = DefaultChunkSize
		}
		for c < need {
			c *= 2
		}
		grown := make([]byte, len(b.Data), c)
		copy(grown, b.Data)
		b.Data = grown
	}
	b.Data = append(b.Data, p...)
	b.Last = b.Data[len(b.Data)-len(p):]
}

// Accumulate reads from r until m classifies the accumulated block as
// terminal. Every chunk triggers a classification of the whole block so
// markers split across reads are still found. Peer closure, read errors
// and timeouts are transport errors; they never yield OK.
func Accumulate(r Receiver, exp Expectation, m Matcher, chunkSize int) (*ResponseBlock, Status, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunk := make([]byte, chunkSize)
	block := &ResponseBlock{Tag: exp.Tag, Data: make([]byte, 0, chunkSize)}

	for {
		n, err := r.Receive(chunk)
		if n > 0 {
			block.append(chunk[:n])
			if res := m.Classify(block, exp); res.Status != Incomplete {
				block.Terminated = true
				block.Resp = res.Resp
				block.end = res.Offset
				return block, res.Status, nil
			}
		}
		switch {
		case errors.Is(err, io.EOF):
			return block, Incomplete, ErrPeerClosed
		case err != nil:
			return block, Incomplete, fmt.Errorf("receive: %w", err)
		case n <= 0:
			return block, Incomplete, ErrPeerClosed
		}
	}
}
