package webm

import (
	"github.com/go-webdl/packager/pkg/stream"
)

// ClusterBuilder accumulates one segment boundary's worth of samples into a
// single Cluster element, mirroring pkg/mp4frag.FragmentBuilder's
// AddSample/Finalize shape: samples buffer in memory until the segment
// boundary is known, then the whole Cluster is serialized at once since its
// Timecode is the first sample's timestamp.
type ClusterBuilder struct {
	trackNumber uint64
	timeScale   uint32

	haveFirst       bool
	clusterTimecode int64 // milliseconds
	blocks          [][]byte
}

// NewClusterBuilder constructs a ClusterBuilder for trackNumber. timeScale
// is the track's StreamInfo.TimeScale, used to convert sample DTS into the
// millisecond ticks the Cluster/SimpleBlock timecodes are expressed in.
func NewClusterBuilder(trackNumber uint64, timeScale uint32) *ClusterBuilder {
	return &ClusterBuilder{trackNumber: trackNumber, timeScale: timeScale}
}

func (c *ClusterBuilder) toMillis(dts int64) int64 {
	if c.timeScale == 0 {
		return dts
	}
	return dts * 1000 / int64(c.timeScale)
}

// AddSample appends one sample's SimpleBlock. Relative timecodes are signed
// 16-bit, so a sample whose distance from the cluster's first sample would
// overflow that range forces the caller's muxer to rotate (checked by
// ClusterBuilder.Overflows before calling AddSample, matching
// fragmenter.h's fixed-length-fragment discipline).
func (c *ClusterBuilder) AddSample(sample *stream.MediaSample) {
	ms := c.toMillis(sample.DTS)
	if !c.haveFirst {
		c.clusterTimecode = ms
		c.haveFirst = true
	}
	relative := ms - c.clusterTimecode

	flags := byte(0)
	if sample.IsKeyFrame {
		flags |= 0x80
	}

	body := make([]byte, 0, 3+len(sample.Payload))
	body = append(body, encodeTrackNumberVint(c.trackNumber)...)
	body = append(body, encodeInt16(int16(relative))...)
	body = append(body, flags)
	body = append(body, sample.Payload...)

	c.blocks = append(c.blocks, element(idSimpleBlock, body))
}

// Overflows reports whether adding a sample at dts would push this
// cluster's relative timecode range past what a signed 16-bit SimpleBlock
// timecode can represent, meaning the caller must finalize the current
// cluster and start a new one before adding this sample.
func (c *ClusterBuilder) Overflows(dts int64) bool {
	if !c.haveFirst {
		return false
	}
	relative := c.toMillis(dts) - c.clusterTimecode
	return relative > 32767 || relative < -32768
}

// Empty reports whether no sample has been added yet.
func (c *ClusterBuilder) Empty() bool {
	return len(c.blocks) == 0
}

// Finalize serializes the accumulated Cluster element.
func (c *ClusterBuilder) Finalize() []byte {
	children := make([][]byte, 0, len(c.blocks)+1)
	children = append(children, uintElement(idTimecode, uint64(c.clusterTimecode)))
	children = append(children, c.blocks...)
	return master(idCluster, children...)
}

// encodeTrackNumberVint encodes n as an EBML vint for SimpleBlock's leading
// track-number field (distinct from encodeSize: here the value itself,
// not a following element's length, is being vint-encoded, but the wire
// format is identical per RFC 8794 §4).
func encodeTrackNumberVint(n uint64) []byte {
	return encodeSize(n)
}
