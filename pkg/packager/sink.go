package packager

import (
	"fmt"
	"os"
)

// TSFileSink writes an MPEG-2 TS segmenter's output to disk, implementing
// pkg/mp2t.Sink. For single-file output (Output set, SegmentTemplate
// empty), Rotate after the first call is a no-op, matching pkg/mp2t.Sink's
// "for single-file output, segments are logical only" contract; for
// segment-template output each Rotate closes the previous segment file and
// opens the next, with the path computed via ExpandSegmentNumber.
type TSFileSink struct {
	desc *StreamDescriptor
	file *os.File
}

// NewTSFileSink constructs a TSFileSink for desc.
func NewTSFileSink(desc *StreamDescriptor) *TSFileSink {
	return &TSFileSink{desc: desc}
}

func (s *TSFileSink) Rotate(segmentNumber uint32) error {
	if s.desc.SegmentTemplate == "" {
		if s.file != nil {
			return nil
		}
		f, err := os.Create(s.desc.Output)
		if err != nil {
			return err
		}
		s.file = f
		return nil
	}

	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return err
		}
	}
	f, err := os.Create(ExpandSegmentNumber(s.desc.SegmentTemplate, segmentNumber))
	if err != nil {
		return err
	}
	s.file = f
	return nil
}

func (s *TSFileSink) Write(p []byte) error {
	if s.file == nil {
		return fmt.Errorf("packager: TSFileSink.Write called before Rotate opened a file")
	}
	_, err := s.file.Write(p)
	return err
}

// Close closes the currently open segment file, if any.
func (s *TSFileSink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// FragmentedFileSink writes an init segment once (to InitSegment, falling
// back to Output when InitSegment is unset) and one segment file per
// Rotate. Its WriteInit/Rotate/Write methods satisfy both pkg/mp4frag.Sink
// and pkg/webm.Sink, whose contracts are structurally identical.
type FragmentedFileSink struct {
	desc *StreamDescriptor
	file *os.File
}

// NewFragmentedFileSink constructs a FragmentedFileSink for desc.
func NewFragmentedFileSink(desc *StreamDescriptor) *FragmentedFileSink {
	return &FragmentedFileSink{desc: desc}
}

func (s *FragmentedFileSink) WriteInit(p []byte) error {
	path := s.desc.InitSegment
	if path == "" {
		path = s.desc.Output
	}
	return os.WriteFile(path, p, 0o644)
}

func (s *FragmentedFileSink) Rotate(segmentNumber uint32) error {
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			return err
		}
	}
	path := s.desc.Output
	if s.desc.SegmentTemplate != "" {
		path = ExpandSegmentNumber(s.desc.SegmentTemplate, segmentNumber)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	s.file = f
	return nil
}

func (s *FragmentedFileSink) Write(p []byte) error {
	if s.file == nil {
		return fmt.Errorf("packager: FragmentedFileSink.Write called before Rotate opened a file")
	}
	_, err := s.file.Write(p)
	return err
}

// Close closes the currently open segment file, if any.
func (s *FragmentedFileSink) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
