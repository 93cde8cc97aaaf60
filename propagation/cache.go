package propagation

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
)

const (
	cacheMagic  = "ASIR1"
	cacheSuffix = ".ir.zst"
)

// DiskCache stores solved impulse responses under a directory, one
// zstd-compressed file per cell key. Files are written to a temporary name
// and renamed into place, so concurrent builds sharing a directory never
// observe partial files.
type DiskCache struct {
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder

	hits    atomic.Int64
	misses  atomic.Int64
	corrupt atomic.Int64
}

// CacheStats reports lookup counters.
type CacheStats struct {
	Hits    int64
	Misses  int64
	Corrupt int64
}

// NewDiskCache creates dir if needed and returns a cache rooted there.
func NewDiskCache(dir string) (*DiskCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty cache directory", ErrConfiguration)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir, enc: enc, dec: dec}, nil
}

// Dir returns the cache directory.
func (c *DiskCache) Dir() string { return c.dir }

// Stats returns a snapshot of the lookup counters.
func (c *DiskCache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Corrupt: c.corrupt.Load()}
}

// Get returns the samples stored under key. Unreadable or corrupt entries
// count as misses.
func (c *DiskCache) Get(key string) ([]float64, bool) {
	raw, err := os.ReadFile(c.path(key))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.corrupt.Add(1)
		}
		c.misses.Add(1)
		return nil, false
	}
	samples, err := c.decode(raw)
	if err != nil {
		c.corrupt.Add(1)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return samples, true
}

// Put stores samples under key.
func (c *DiskCache) Put(key string, samples []float64) error {
	return writeFileAtomic(c.path(key), c.encode(samples))
}

func (c *DiskCache) path(key string) string {
	return filepath.Join(c.dir, key+cacheSuffix)
}

func (c *DiskCache) encode(samples []float64) []byte {
	buf := make([]byte, len(cacheMagic)+4+8*len(samples))
	copy(buf, cacheMagic)
	off := len(cacheMagic)
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(samples)))
	off += 4
	for _, v := range samples {
		binary.LittleEndian.PutUint64(buf[off:], math.Float64bits(v))
		off += 8
	}
	return c.enc.EncodeAll(buf, nil)
}

func (c *DiskCache) decode(raw []byte) ([]float64, error) {
	buf, err := c.dec.DecodeAll(raw, nil)
	if err != nil {
		return nil, err
	}
	head := len(cacheMagic) + 4
	if len(buf) < head || string(buf[:len(cacheMagic)]) != cacheMagic {
		return nil, fmt.Errorf("bad cache header")
	}
	n := int(binary.LittleEndian.Uint32(buf[len(cacheMagic):]))
	if len(buf) != head+8*n {
		return nil, fmt.Errorf("cache entry holds %d bytes, want %d", len(buf), head+8*n)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[head+8*i:]))
	}
	return out, nil
}

// cellKey identifies one solve: the canonical description, the model and
// every request parameter that changes the response.
func cellKey(descJSON []byte, model string, req Request) string {
	h := sha256.New()
	h.Write(descJSON)
	fmt.Fprintf(h, "|%s|%g|%g|%g|%g|%g|%g|%d",
		model, req.SensorDepthM, req.SourceDepthM, req.RangeM,
		req.SampleRateHz, req.Band.MinHz, req.Band.MaxHz, req.Length)
	return hex.EncodeToString(h.Sum(nil))
}
