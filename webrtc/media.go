package webrtc

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
	"github.com/pion/webrtc/v3/pkg/media/oggwriter"
)

// opusClockRate is the RTP clock rate of Opus, also used for Ogg granule positions.
const opusClockRate = 48000

var errMediaClosed = errors.New("webrtc: media closed")

// AudioSource produces the outbound audio of a session. It plays the role of the
// microphone: Open acquires it and a failing Open aborts the session.
type AudioSource interface {
	Open() error
	ReadSample() (media.Sample, error)
	Close() error
}

// AudioSink receives the inbound provider audio.
type AudioSink interface {
	Open() error
	WriteRTP(pkt *rtp.Packet) error
	Close() error
}

// Media builds a fresh source and sink for every session.
type Media struct {
	NewSource func() AudioSource
	NewSink   func() AudioSink
}

// OggMedia plays input as the microphone and records provider audio to output.
func OggMedia(input, output string) Media {
	return Media{
		NewSource: func() AudioSource { return NewOggSource(input) },
		NewSink:   func() AudioSink { return NewOggSink(output) },
	}
}

// OggSource reads Opus pages from an Ogg file, one page per sample.
type OggSource struct {
	path string

	mu          sync.Mutex
	f           *os.File
	r           *oggreader.OggReader
	lastGranule uint64
}

// NewOggSource returns a source for the Ogg/Opus file at path.
func NewOggSource(path string) *OggSource {
	return &OggSource{path: path}
}

// Open opens the file and parses the Ogg identification header.
func (s *OggSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	r, _, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return err
	}
	s.f, s.r, s.lastGranule = f, r, 0
	return nil
}

// ReadSample returns the next audio page. Pages that do not advance the granule
// position (comment headers) are skipped. io.EOF marks the end of the file.
func (s *OggSource) ReadSample() (media.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.r == nil {
		return media.Sample{}, errMediaClosed
	}
	for {
		page, hdr, err := s.r.ParseNextPage()
		if err != nil {
			return media.Sample{}, err
		}
		if hdr.GranulePosition <= s.lastGranule {
			s.lastGranule = hdr.GranulePosition
			continue
		}
		samples := hdr.GranulePosition - s.lastGranule
		s.lastGranule = hdr.GranulePosition
		return media.Sample{
			Data:     page,
			Duration: time.Duration(samples) * time.Second / opusClockRate,
		}, nil
	}
}

// Close releases the file. It is safe to call more than once.
func (s *OggSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.r = nil
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

// OggSink records an inbound Opus stream to an Ogg file.
type OggSink struct {
	path string

	mu sync.Mutex
	w  *oggwriter.OggWriter
}

// NewOggSink returns a sink writing to path.
func NewOggSink(path string) *OggSink {
	return &OggSink{path: path}
}

// Open creates (or truncates) the output file.
func (s *OggSink) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, err := oggwriter.New(s.path, opusClockRate, 2)
	if err != nil {
		return err
	}
	s.w = w
	return nil
}

// WriteRTP appends one RTP packet's Opus payload.
func (s *OggSink) WriteRTP(pkt *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return errMediaClosed
	}
	return s.w.WriteRTP(pkt)
}

// Close finalizes the file. It is safe to call more than once.
func (s *OggSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.w == nil {
		return nil
	}
	err := s.w.Close()
	s.w = nil
	if errors.Is(err, io.ErrClosedPipe) {
		return nil
	}
	return err
}
