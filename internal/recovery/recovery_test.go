package recovery

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mv2s/mv2s/internal/format"
	"github.com/mv2s/mv2s/pkg/filesys"
)

const testWalSize = uint64(4096)

// buildTestFile builds a minimal but fully valid store file: a header
// page at offset A, an empty WAL region, an empty TOC, and its footer.
func buildTestFile(t *testing.T) (*os.File, int64) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "store-*.bin")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })

	dataStart := format.HeaderRegionEnd + testWalSize
	toc := &format.Toc{Version: format.TocVersion1}
	tocBuf, err := toc.Encode()
	require.NoError(t, err)
	tocChecksum, err := toc.Checksum()
	require.NoError(t, err)

	tocOffset := dataStart
	footerOffset := tocOffset + uint64(len(tocBuf))
	require.NoError(t, f.Truncate(int64(footerOffset)+format.FooterSize))
	require.NoError(t, filesys.WriteAllAt(f, int64(tocOffset), tocBuf))

	footer := &format.Footer{TocLength: uint64(len(tocBuf)), TocChecksum: tocChecksum, Generation: 1}
	footerBuf, err := footer.Encode()
	require.NoError(t, err)
	require.NoError(t, filesys.WriteAllAt(f, int64(footerOffset), footerBuf))

	hp := &format.HeaderPage{
		FormatVersion: format.FormatVersion, SpecMajor: format.SpecMajor, SpecMinor: format.SpecMinor,
		HeaderPageGeneration: 1, FileGeneration: 1,
		FooterOffset: footerOffset,
		WalOffset:    format.HeaderRegionEnd, WalSize: testWalSize,
		WalWritePos: 0, WalCheckpointPos: 0, WalCommittedSeq: 0,
		TocChecksum: tocChecksum,
		Replay:      &format.ReplaySnapshot{TocChecksum: tocChecksum},
	}
	hpBuf, err := hp.Encode()
	require.NoError(t, err)
	require.NoError(t, filesys.WriteAllAt(f, int64(format.HeaderOffsetA), hpBuf))

	info, err := f.Stat()
	require.NoError(t, err)
	return f, info.Size()
}

// TestBootstrapSelectsHigherGenerationHeaderPage verifies a second write
// to header page B with a higher generation wins over page A.
func TestBootstrapSelectsHigherGenerationHeaderPage(t *testing.T) {
	f, size := buildTestFile(t)

	pageA := make([]byte, format.HeaderPageSize)
	require.NoError(t, filesys.ReadExactAt(f, int64(format.HeaderOffsetA), pageA))
	hp, err := format.DecodeHeaderPage(pageA)
	require.NoError(t, err)
	hp.HeaderPageGeneration = 2
	hpBuf, err := hp.Encode()
	require.NoError(t, err)
	require.NoError(t, filesys.WriteAllAt(f, int64(format.HeaderOffsetB), hpBuf))

	res, err := Bootstrap(f, size, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Equal(t, uint64(format.HeaderOffsetB), res.HeaderOffset)
	require.Equal(t, uint64(2), res.HeaderPage.HeaderPageGeneration)
}

// TestBootstrapSkipsScanWhenReplaySnapshotConsistent verifies Bootstrap
// trusts the header's replay snapshot when write_pos==checkpoint_pos and
// a sentinel sits at write_pos, avoiding a WAL tail scan.
func TestBootstrapSkipsScanWhenReplaySnapshotConsistent(t *testing.T) {
	f, size := buildTestFile(t)

	res, err := Bootstrap(f, size, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.True(t, res.ScanSkipped)
	require.NotNil(t, res.Toc)
	require.Empty(t, res.Toc.Frames)
}

// TestBootstrapFallsBackToTailScanOnFooterOffsetMismatch verifies a
// header whose footer_offset has been corrupted still recovers the
// footer via the tail-scan fallback.
func TestBootstrapFallsBackToTailScanOnFooterOffsetMismatch(t *testing.T) {
	f, size := buildTestFile(t)

	pageA := make([]byte, format.HeaderPageSize)
	require.NoError(t, filesys.ReadExactAt(f, int64(format.HeaderOffsetA), pageA))
	hp, err := format.DecodeHeaderPage(pageA)
	require.NoError(t, err)
	hp.FooterOffset = 1 // now points at garbage, forcing the tail scan
	hpBuf, err := hp.Encode()
	require.NoError(t, err)
	require.NoError(t, filesys.WriteAllAt(f, int64(format.HeaderOffsetA), hpBuf))

	res, err := Bootstrap(f, size, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NotNil(t, res.Footer)
}

// TestBootstrapPrefersHigherGenerationFooterOverHeaderNamed verifies the
// open path unions the header-named footer with every footer the tail
// scan turns up, and picks the one with the higher generation even when
// the header still names the older one.
func TestBootstrapPrefersHigherGenerationFooterOverHeaderNamed(t *testing.T) {
	f, _ := buildTestFile(t)

	pageA := make([]byte, format.HeaderPageSize)
	require.NoError(t, filesys.ReadExactAt(f, int64(format.HeaderOffsetA), pageA))
	hp, err := format.DecodeHeaderPage(pageA)
	require.NoError(t, err)

	staleEnd, err := f.Stat()
	require.NoError(t, err)

	toc := &format.Toc{Version: format.TocVersion1}
	tocBuf, err := toc.Encode()
	require.NoError(t, err)
	tocChecksum, err := toc.Checksum()
	require.NoError(t, err)

	newTocOffset := uint64(staleEnd.Size())
	newFooterOffset := newTocOffset + uint64(len(tocBuf))
	require.NoError(t, f.Truncate(int64(newFooterOffset)+format.FooterSize))
	require.NoError(t, filesys.WriteAllAt(f, int64(newTocOffset), tocBuf))

	newFooter := &format.Footer{TocLength: uint64(len(tocBuf)), TocChecksum: tocChecksum, Generation: 2}
	newFooterBuf, err := newFooter.Encode()
	require.NoError(t, err)
	require.NoError(t, filesys.WriteAllAt(f, int64(newFooterOffset), newFooterBuf))

	info, err := f.Stat()
	require.NoError(t, err)

	res, err := Bootstrap(f, info.Size(), zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Equal(t, uint64(2), res.Footer.Generation)
	require.Equal(t, newFooterOffset, res.FooterOffset)
	require.NotEqual(t, hp.FooterOffset, res.FooterOffset) // header still names the stale footer
}

// TestBootstrapRejectsTocChecksumMismatch verifies a footer whose
// recorded TOC checksum doesn't match the decoded TOC's own self-hash is
// rejected rather than silently accepted.
func TestBootstrapRejectsTocChecksumMismatch(t *testing.T) {
	f, size := buildTestFile(t)

	pageA := make([]byte, format.HeaderPageSize)
	require.NoError(t, filesys.ReadExactAt(f, int64(format.HeaderOffsetA), pageA))
	hp, err := format.DecodeHeaderPage(pageA)
	require.NoError(t, err)

	footerBuf := make([]byte, format.FooterSize)
	require.NoError(t, filesys.ReadExactAt(f, int64(hp.FooterOffset), footerBuf))
	footer, err := format.DecodeFooter(footerBuf)
	require.NoError(t, err)
	footer.TocChecksum[0] ^= 0xFF
	corrupted, err := footer.Encode()
	require.NoError(t, err)
	require.NoError(t, filesys.WriteAllAt(f, int64(hp.FooterOffset), corrupted))

	_, err = Bootstrap(f, size, zap.NewNop().Sugar())
	require.Error(t, err)
}

// TestBootstrapRejectsFrameOutsideDataRegion verifies validateDataRanges
// catches a frame payload range that extends past the TOC offset.
func TestBootstrapRejectsFrameOutsideDataRegion(t *testing.T) {
	f, size := buildTestFile(t)

	pageA := make([]byte, format.HeaderPageSize)
	require.NoError(t, filesys.ReadExactAt(f, int64(format.HeaderOffsetA), pageA))
	hp, err := format.DecodeHeaderPage(pageA)
	require.NoError(t, err)

	badToc := &format.Toc{
		Version: format.TocVersion1,
		Frames: []*format.FrameMeta{
			{ID: 0, Kind: "message", PayloadOffset: hp.WalOffset + hp.WalSize, PayloadLength: 1_000_000_000},
		},
	}
	tocBuf, err := badToc.Encode()
	require.NoError(t, err)
	tocChecksum, err := badToc.Checksum()
	require.NoError(t, err)

	newTocOffset := hp.FooterOffset - uint64(len(tocBuf))
	require.NoError(t, filesys.WriteAllAt(f, int64(newTocOffset), tocBuf))

	footer := &format.Footer{TocLength: uint64(len(tocBuf)), TocChecksum: tocChecksum, Generation: 2}
	footerBuf, err := footer.Encode()
	require.NoError(t, err)
	require.NoError(t, filesys.WriteAllAt(f, int64(hp.FooterOffset), footerBuf))

	hp.TocChecksum = tocChecksum
	hp.Replay = &format.ReplaySnapshot{TocChecksum: tocChecksum}
	hpBuf, err := hp.Encode()
	require.NoError(t, err)
	require.NoError(t, filesys.WriteAllAt(f, int64(format.HeaderOffsetA), hpBuf))

	_, err = Bootstrap(f, size, zap.NewNop().Sugar())
	require.Error(t, err)
}
