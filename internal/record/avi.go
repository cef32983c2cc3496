package record

import (
	"bytes"
	"encoding/binary"
)

// AVI assembly. The output is a plain RIFF file with one MJPEG video
// stream and one 16-bit mono PCM audio stream, chunks interleaved one
// pair per tick, plus the idx1 index old players still want.

const (
	aviHasIndex = 0x00000010
	aviKeyframe = 0x00000010
)

func le16(b *bytes.Buffer, v uint16) {
	var s [2]byte
	binary.LittleEndian.PutUint16(s[:], v)
	b.Write(s[:])
}

func le32(b *bytes.Buffer, v uint32) {
	var s [4]byte
	binary.LittleEndian.PutUint32(s[:], v)
	b.Write(s[:])
}

type idxEntry struct {
	id        string
	flags     uint32
	off, size uint32
}

// MuxAVI builds the finished file from per-tick JPEG frames and PCM
// chunks. fps is frames per second of the video stream, sampleRate the
// audio clock.
func MuxAVI(width, height, fps, sampleRate int, video, audio [][]byte) []byte {
	if fps <= 0 {
		fps = 1
	}

	var movi bytes.Buffer
	movi.WriteString("movi")
	var idx []idxEntry
	writeChunk := func(id string, data []byte) {
		off := uint32(movi.Len())
		movi.WriteString(id)
		le32(&movi, uint32(len(data)))
		movi.Write(data)
		if len(data)%2 == 1 {
			movi.WriteByte(0)
		}
		idx = append(idx, idxEntry{id: id, flags: aviKeyframe, off: off, size: uint32(len(data))})
	}
	n := len(video)
	if len(audio) > n {
		n = len(audio)
	}
	audioBytes := 0
	for i := 0; i < n; i++ {
		if i < len(video) {
			writeChunk("00dc", video[i])
		}
		if i < len(audio) && len(audio[i]) > 0 {
			writeChunk("01wb", audio[i])
			audioBytes += len(audio[i])
		}
	}

	var hdrl bytes.Buffer
	hdrl.WriteString("hdrl")

	// avih: MainAVIHeader
	hdrl.WriteString("avih")
	le32(&hdrl, 56)
	le32(&hdrl, uint32(1000000/fps)) // microseconds per frame
	le32(&hdrl, 0)                   // max bytes per sec
	le32(&hdrl, 0)                   // padding granularity
	le32(&hdrl, aviHasIndex)
	le32(&hdrl, uint32(len(video)))
	le32(&hdrl, 0) // initial frames
	le32(&hdrl, 2) // streams
	le32(&hdrl, 0) // suggested buffer size
	le32(&hdrl, uint32(width))
	le32(&hdrl, uint32(height))
	le32(&hdrl, 0)
	le32(&hdrl, 0)
	le32(&hdrl, 0)
	le32(&hdrl, 0)

	// video strl: AVIStreamHeader + BITMAPINFOHEADER
	var strlV bytes.Buffer
	strlV.WriteString("strl")
	strlV.WriteString("strh")
	le32(&strlV, 56)
	strlV.WriteString("vids")
	strlV.WriteString("MJPG")
	le32(&strlV, 0) // flags
	le16(&strlV, 0) // priority
	le16(&strlV, 0) // language
	le32(&strlV, 0) // initial frames
	le32(&strlV, 1) // scale
	le32(&strlV, uint32(fps))
	le32(&strlV, 0) // start
	le32(&strlV, uint32(len(video)))
	le32(&strlV, 0)          // suggested buffer size
	le32(&strlV, 0xFFFFFFFF) // quality: default
	le32(&strlV, 0)          // sample size
	le16(&strlV, 0)          // rcFrame
	le16(&strlV, 0)
	le16(&strlV, uint16(width))
	le16(&strlV, uint16(height))
	strlV.WriteString("strf")
	le32(&strlV, 40)
	le32(&strlV, 40) // biSize
	le32(&strlV, uint32(width))
	le32(&strlV, uint32(height))
	le16(&strlV, 1)  // planes
	le16(&strlV, 24) // bit count
	strlV.WriteString("MJPG")
	le32(&strlV, uint32(width*height*3))
	le32(&strlV, 0)
	le32(&strlV, 0)
	le32(&strlV, 0)
	le32(&strlV, 0)

	// audio strl: AVIStreamHeader + WAVEFORMAT
	var strlA bytes.Buffer
	strlA.WriteString("strl")
	strlA.WriteString("strh")
	le32(&strlA, 56)
	strlA.WriteString("auds")
	le32(&strlA, 0) // handler
	le32(&strlA, 0) // flags
	le16(&strlA, 0)
	le16(&strlA, 0)
	le32(&strlA, 0) // initial frames
	le32(&strlA, 1) // scale
	le32(&strlA, uint32(sampleRate))
	le32(&strlA, 0) // start
	le32(&strlA, uint32(audioBytes/2))
	le32(&strlA, 0)          // suggested buffer size
	le32(&strlA, 0xFFFFFFFF) // quality
	le32(&strlA, 2)          // sample size
	le16(&strlA, 0)
	le16(&strlA, 0)
	le16(&strlA, 0)
	le16(&strlA, 0)
	strlA.WriteString("strf")
	le32(&strlA, 16)
	le16(&strlA, 1) // PCM
	le16(&strlA, 1) // mono
	le32(&strlA, uint32(sampleRate))
	le32(&strlA, uint32(sampleRate*2))
	le16(&strlA, 2)  // block align
	le16(&strlA, 16) // bits per sample

	hdrl.WriteString("LIST")
	le32(&hdrl, uint32(strlV.Len()))
	hdrl.Write(strlV.Bytes())
	hdrl.WriteString("LIST")
	le32(&hdrl, uint32(strlA.Len()))
	hdrl.Write(strlA.Bytes())

	idxSize := len(idx) * 16
	riffSize := 4 + 8 + hdrl.Len() + 8 + movi.Len() + 8 + idxSize

	var out bytes.Buffer
	out.Grow(riffSize + 8)
	out.WriteString("RIFF")
	le32(&out, uint32(riffSize))
	out.WriteString("AVI ")
	out.WriteString("LIST")
	le32(&out, uint32(hdrl.Len()))
	out.Write(hdrl.Bytes())
	out.WriteString("LIST")
	le32(&out, uint32(movi.Len()))
	out.Write(movi.Bytes())
	out.WriteString("idx1")
	le32(&out, uint32(idxSize))
	for _, e := range idx {
		out.WriteString(e.id)
		le32(&out, e.flags)
		le32(&out, e.off)
		le32(&out, e.size)
	}
	return out.Bytes()
}
