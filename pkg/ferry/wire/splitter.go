package wire

import (
	"errors"
	"io"
	"strconv"
	"strings"
)

// MaxSequenceLen bounds how many bytes a single OSC sequence may buffer
// before the splitter gives up on it and passes the bytes through.
const MaxSequenceLen = 4 << 20

type splitState int

const (
	stateText splitState = iota
	stateEsc
	stateOSC
	stateOSCEsc
)

// Splitter separates transfer commands from ordinary terminal input.
// Bytes that are not part of an OSC 5113 sequence are written unchanged to
// the passthrough writer (keystrokes, other escape sequences); payloads of
// OSC 5113 sequences are handed to the callback without the envelope.
type Splitter struct {
	passthrough io.Writer
	onPayload   func(payload string)

	state splitState
	seq   []byte
	text  []byte
}

// NewSplitter returns a splitter writing ordinary input to passthrough.
func NewSplitter(passthrough io.Writer, onPayload func(payload string)) *Splitter {
	return &Splitter{passthrough: passthrough, onPayload: onPayload}
}

// Feed processes a chunk of input. Sequences may span calls.
func (s *Splitter) Feed(p []byte) error {
	for _, b := range p {
		switch s.state {
		case stateText:
			if b == 0x1b {
				s.state = stateEsc
				continue
			}
			s.text = append(s.text, b)

		case stateEsc:
			switch b {
			case ']':
				s.state = stateOSC
				s.seq = append(s.seq[:0], oscStart...)
			case 0x1b:
				s.text = append(s.text, 0x1b)
			default:
				s.text = append(s.text, 0x1b, b)
				s.state = stateText
			}

		case stateOSC:
			switch b {
			case 0x07:
				s.seq = append(s.seq, b)
				s.finishSequence(len(s.seq) - 1)
			case 0x1b:
				s.state = stateOSCEsc
			default:
				s.seq = append(s.seq, b)
				s.overflowCheck()
			}

		case stateOSCEsc:
			if b == '\\' {
				s.seq = append(s.seq, 0x1b, b)
				s.finishSequence(len(s.seq) - 2)
				continue
			}
			s.seq = append(s.seq, 0x1b, b)
			s.state = stateOSC
			s.overflowCheck()
		}
	}
	return s.flushText()
}

// Run feeds everything read from r until EOF or a read error.
func (s *Splitter) Run(r io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if ferr := s.Feed(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// finishSequence handles a complete OSC sequence whose body ends at bodyEnd.
func (s *Splitter) finishSequence(bodyEnd int) {
	s.state = stateText
	body := string(s.seq[len(oscStart):bodyEnd])
	prefix := strconv.Itoa(Code) + ";"
	if strings.HasPrefix(body, prefix) {
		s.onPayload(strings.TrimPrefix(body, prefix))
	} else {
		s.text = append(s.text, s.seq...)
	}
	s.seq = s.seq[:0]
}

func (s *Splitter) overflowCheck() {
	if len(s.seq) <= MaxSequenceLen {
		return
	}
	s.text = append(s.text, s.seq...)
	s.seq = s.seq[:0]
	s.state = stateText
}

func (s *Splitter) flushText() error {
	if len(s.text) == 0 {
		return nil
	}
	_, err := s.passthrough.Write(s.text)
	s.text = s.text[:0]
	return err
}
