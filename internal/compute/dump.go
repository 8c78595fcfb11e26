package compute

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/taikochain/proverd/internal/paramstore"
	"github.com/taikochain/proverd/internal/provertypes"
)

// dumpMeta is the small CBOR-framed header written alongside every
// PROVERD_DUMP blob: the opaque bytes themselves are the proving
// library's verbatim serialization (§6), but this header records enough
// to make an offline dump directory navigable.
type dumpMeta struct {
	CacheKey  string    `cbor:"cache_key"`
	WrittenAt time.Time `cbor:"written_at"`
}

func (w *Wrapper) dumpEnabled() bool { return w.DumpDir != "" }

func (w *Wrapper) writeDump(name string, payload []byte, meta dumpMeta) {
	if !w.dumpEnabled() {
		return
	}
	path := filepath.Join(w.DumpDir, name)
	_ = os.WriteFile(path, payload, 0o644)

	metaBytes, err := cbor.Marshal(meta)
	if err == nil {
		_ = os.WriteFile(path+".meta", metaBytes, 0o644)
	}
}

func (w *Wrapper) dumpParams(p *paramstore.Params) {
	w.writeDump(fmt.Sprintf("params-%d", p.K), p.Bytes, dumpMeta{CacheKey: fmt.Sprintf("params-%d", p.K), WrittenAt: time.Now()})
}

func (w *Wrapper) dumpKey(cacheKey string, key any) {
	w.writeDump(cacheKey, []byte(fmt.Sprintf("%v", key)), dumpMeta{CacheKey: cacheKey, WrittenAt: time.Now()})
}

func (w *Wrapper) dumpProof(circuitTag string, cfg provertypes.CircuitConfig, aggregate bool, proof []byte) {
	name := fmt.Sprintf("proof-%s-%s", circuitTag, configRepr(cfg))
	if aggregate {
		name = fmt.Sprintf("proof-%s-agg-%s", circuitTag, configRepr(cfg))
	}
	w.writeDump(name, proof, dumpMeta{CacheKey: name, WrittenAt: time.Now()})
}
