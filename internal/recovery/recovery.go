// Package recovery implements store-open bootstrap (§4.7, §4.8): header
// page selection, footer location, TOC decode and range validation, and
// the decision to skip or run the WAL tail scan.
package recovery

import (
	"os"

	"go.uber.org/zap"

	"github.com/mv2s/mv2s/internal/format"
	"github.com/mv2s/mv2s/internal/wal"
	"github.com/mv2s/mv2s/pkg/errors"
	"github.com/mv2s/mv2s/pkg/filesys"
)

// Result is everything Open needs to resume serving requests: the winning
// header page, its offset, the footer it points to, the decoded TOC, and
// either an adopted snapshot or a freshly-run WAL scan.
type Result struct {
	HeaderPage   *format.HeaderPage
	HeaderOffset uint64
	Footer       *format.Footer
	FooterOffset uint64
	Toc          *format.Toc

	ScanResult  *wal.ScanResult
	ScanSkipped bool
}

// Bootstrap runs the full recovery pipeline against an already-open store
// file: header selection, footer location, TOC decode, data-range
// validation, and WAL replay (or its skip).
func Bootstrap(file *os.File, fileSize int64, log *zap.SugaredLogger) (*Result, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	hp, hpOffset, err := selectHeaderPage(file, log)
	if err != nil {
		return nil, err
	}

	footer, footerOffset, err := locateFooter(file, fileSize, hp, log)
	if err != nil {
		return nil, err
	}

	tocOffset := footer.TocOffsetAt(footerOffset)
	if tocOffset+footer.TocLength > uint64(fileSize) {
		return nil, errors.NewTocError(nil, errors.ErrorCodeInvalidFooter, "toc range extends past end of file").
			WithDetail("toc_offset", tocOffset).WithDetail("toc_length", footer.TocLength)
	}
	tocBuf := make([]byte, footer.TocLength)
	if err := filesys.ReadExactAt(file, int64(tocOffset), tocBuf); err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to read toc").
			WithOffset(int64(tocOffset))
	}

	toc, err := format.DecodeToc(tocBuf)
	if err != nil {
		return nil, err
	}

	tocChecksum, err := toc.Checksum()
	if err != nil {
		return nil, err
	}
	if !footer.MatchesToc(tocChecksum) {
		return nil, errors.NewTocError(nil, errors.ErrorCodeChecksumMismatch, "footer toc checksum does not match decoded toc")
	}

	dataStart := hp.WalOffset + hp.WalSize
	dataEnd := tocOffset
	if err := validateDataRanges(toc, dataStart, dataEnd); err != nil {
		return nil, err
	}

	res := &Result{
		HeaderPage:   hp,
		HeaderOffset: hpOffset,
		Footer:       footer,
		FooterOffset: footerOffset,
		Toc:          toc,
	}

	if canSkipScan(file, hp, tocChecksum) {
		log.Infow("wal replay snapshot is consistent, skipping tail scan",
			"write_pos", hp.WalWritePos, "checkpoint_pos", hp.WalCheckpointPos)
		res.ScanSkipped = true
		res.ScanResult = &wal.ScanResult{
			WritePos:      hp.WalWritePos,
			CheckpointPos: hp.WalCheckpointPos,
			LastSequence:  hp.WalCommittedSeq,
		}
		return res, nil
	}

	log.Infow("running wal tail scan", "checkpoint_pos", hp.WalCheckpointPos, "committed_seq", hp.WalCommittedSeq)
	scanResult, err := wal.Scan(file, hp.WalOffset, hp.WalSize, hp.WalCheckpointPos, hp.WalCommittedSeq)
	if err != nil {
		return nil, err
	}
	res.ScanResult = scanResult
	return res, nil
}

func selectHeaderPage(file *os.File, log *zap.SugaredLogger) (*format.HeaderPage, uint64, error) {
	var candidates []struct {
		hp     *format.HeaderPage
		offset uint64
	}

	for _, offset := range []uint64{format.HeaderOffsetA, format.HeaderOffsetB} {
		buf := make([]byte, format.HeaderPageSize)
		if err := filesys.ReadExactAt(file, int64(offset), buf); err != nil {
			log.Warnw("failed to read header page", "offset", offset, "error", err)
			continue
		}
		hp, err := format.DecodeHeaderPage(buf)
		if err != nil {
			log.Warnw("header page failed validation", "offset", offset, "error", err)
			continue
		}
		candidates = append(candidates, struct {
			hp     *format.HeaderPage
			offset uint64
		}{hp, offset})
	}

	if len(candidates) == 0 {
		return nil, 0, errors.NewTocError(nil, errors.ErrorCodeInvalidHeader, "no valid header page found")
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.hp.HeaderPageGeneration > best.hp.HeaderPageGeneration {
			best = c
		}
	}
	return best.hp, best.offset, nil
}

// footerCandidate is one footer found while locating the true tail of the
// file: either the one named by the header page or one of possibly many
// found scanning backward through the file's last bytes.
type footerCandidate struct {
	footer *format.Footer
	offset uint64
}

// locateFooter gathers every structurally valid footer reachable from the
// header's named offset and a backward tail scan, then returns the one
// with the highest (generation, offset) — the open path's union of the
// header-named footer and the scan result (§4.5).
func locateFooter(file *os.File, fileSize int64, hp *format.HeaderPage, log *zap.SugaredLogger) (*format.Footer, uint64, error) {
	var candidates []footerCandidate

	if hp.FooterOffset+format.FooterSize <= uint64(fileSize) {
		buf := make([]byte, format.FooterSize)
		if err := filesys.ReadExactAt(file, int64(hp.FooterOffset), buf); err == nil {
			if footer, err := format.DecodeFooter(buf); err == nil && validFooterLen(footer, hp.FooterOffset) {
				candidates = append(candidates, footerCandidate{footer, hp.FooterOffset})
			}
		}
	}

	scanFrom := fileSize - format.MaxFooterTailScan
	if scanFrom < 0 {
		scanFrom = 0
	}
	tail := make([]byte, fileSize-scanFrom)
	if err := filesys.ReadExactAt(file, scanFrom, tail); err != nil {
		return nil, 0, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to read file tail while locating footer")
	}

	for i := len(tail) - format.FooterSize; i >= 0; i-- {
		if string(tail[i:i+len(format.FooterMagic)]) != format.FooterMagic {
			continue
		}
		offset := uint64(scanFrom) + uint64(i)
		footer, err := format.DecodeFooter(tail[i : i+format.FooterSize])
		if err != nil || !validFooterLen(footer, offset) {
			continue
		}
		candidates = append(candidates, footerCandidate{footer, offset})
	}

	if len(candidates) == 0 {
		return nil, 0, errors.NewTocError(nil, errors.ErrorCodeInvalidFooter, "no valid footer found")
	}
	if len(candidates) > 1 {
		log.Infow("multiple footer candidates found, selecting by generation", "count", len(candidates))
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.footer.Generation > best.footer.Generation {
			best = c
		} else if c.footer.Generation == best.footer.Generation && c.offset > best.offset {
			best = c
		}
	}
	return best.footer, best.offset, nil
}

// validFooterLen bounds a candidate footer's toc_len the way the scanner
// must before trusting it (§4.5): within [MinTocLenForFooter, MaxTocBytes]
// and not reaching before the start of the file.
func validFooterLen(footer *format.Footer, footerOffset uint64) bool {
	return footer.TocLength >= format.MinTocLenForFooter &&
		footer.TocLength <= format.MaxTocBytes &&
		footer.TocLength <= footerOffset
}

func validateDataRanges(toc *format.Toc, dataStart, dataEnd uint64) error {
	for _, fm := range toc.Frames {
		if fm.PayloadLength == 0 {
			continue
		}
		if fm.PayloadOffset < dataStart {
			return errors.NewTocError(nil, errors.ErrorCodeInvalidToc, "frame payload starts before data region").
				WithFrameID(fm.ID)
		}
		if fm.PayloadOffset+fm.PayloadLength > dataEnd {
			return errors.NewTocError(nil, errors.ErrorCodeInvalidToc, "frame payload extends past toc offset").
				WithFrameID(fm.ID)
		}
	}
	for _, se := range toc.Segments {
		if se.Offset < dataStart || se.Offset+se.Length > dataEnd {
			return errors.NewTocError(nil, errors.ErrorCodeInvalidToc, "segment range outside data region").
				WithSegment(se.Kind.String())
		}
	}
	return nil
}

// canSkipScan reports whether the header's replay snapshot lets recovery
// trust write_pos/checkpoint_pos directly instead of re-reading the ring
// (§4.8): the snapshot must match the decoded TOC, write_pos must already
// equal checkpoint_pos (no uncommitted records), and the byte at write_pos
// must be a terminal marker.
func canSkipScan(file *os.File, hp *format.HeaderPage, tocChecksum [32]byte) bool {
	if !hp.ConsistentWith(tocChecksum) {
		return false
	}
	if hp.WalWritePos != hp.WalCheckpointPos {
		return false
	}

	buf := make([]byte, format.WalRecordHeaderSize)
	if err := filesys.ReadExactAt(file, int64(hp.WalOffset+hp.WalWritePos), buf); err != nil {
		return false
	}
	header, err := format.DecodeRecordHeader(buf)
	if err != nil {
		return false
	}
	return header.IsSentinel()
}
