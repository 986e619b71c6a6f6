// Package journal implements the daemon's append-only event log. Records are
// stamped with a timeline identifier: a monotonically assigned integer that
// names one history branch of the log. A primary daemon appends records on
// its current timeline; a standby applies records fetched from a primary and
// switches to a fresh timeline when promoted, so diverged histories can
// always be told apart.
package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/internal/metrics"
)

// TimelineID identifies one history branch of the journal. The zero value
// means "not yet established" and is never assigned to a real timeline.
type TimelineID uint32

// RecordKind enumerates the lifecycle events captured in the journal.
type RecordKind string

const (
	RecordStarted   RecordKind = "started"
	RecordExited    RecordKind = "exited"
	RecordSignalled RecordKind = "signalled"
	RecordPromoted  RecordKind = "promoted"
	RecordCrash     RecordKind = "crash_requested"
	RecordFatal     RecordKind = "fatal_requested"
)

// Record is a single journal entry. Seq increases monotonically across
// timeline switches; Timeline names the history branch it was written on.
type Record struct {
	Seq      uint64     `json:"seq"`
	Timeline TimelineID `json:"timeline"`
	At       time.Time  `json:"at"`
	Kind     RecordKind `json:"kind"`
	Worker   string     `json:"worker,omitempty"`
	PID      int        `json:"pid,omitempty"`
	Detail   string     `json:"detail,omitempty"`
}

var (
	// ErrStandby is returned by Append while the journal is following
	// another daemon's history.
	ErrStandby = errors.New("journal is in standby mode")
	// ErrNotStandby is returned by Promote on a journal that already owns
	// a writable timeline.
	ErrNotStandby = errors.New("journal is not in standby mode")
	// ErrSequenceGap is returned by Apply when the incoming record does
	// not directly extend the local history.
	ErrSequenceGap = errors.New("journal sequence gap")
)

const controlFile = "control.yaml"

var segmentPattern = regexp.MustCompile(`^segment-(\d{8})\.jsonl$`)

type controlDoc struct {
	Timeline TimelineID `yaml:"timeline"`
}

// Journal is a timeline-stamped, append-only record log rooted in a single
// directory of the provided filesystem. One daemon owns one journal; all
// methods are safe for concurrent use.
type Journal struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger

	state *RecoveryState

	mu       sync.Mutex
	standby  bool
	timeline TimelineID
	lastSeq  uint64
	seg      afero.File
}

// Open loads or initialises the journal under dir. Existing segments are
// replayed to recover the last sequence number; a truncated tail left behind
// by a crash is trimmed from the newest segment. In standby mode the journal
// accepts records only through Apply until Promote establishes a new
// writable timeline.
func Open(fsys afero.Fs, dir string, logger *slog.Logger, standby bool) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}

	j := &Journal{
		fs:      fsys,
		dir:     dir,
		logger:  logger,
		standby: standby,
		state:   &RecoveryState{},
	}

	ctl, found, err := j.readControl()
	if err != nil {
		return nil, err
	}

	replayedTL, lastSeq, err := j.recover()
	if err != nil {
		return nil, err
	}
	j.lastSeq = lastSeq
	j.timeline = replayedTL
	if replayedTL != 0 {
		j.state.setLastReplayed(replayedTL)
	}

	if standby {
		// A standby continues whatever history is on disk and waits
		// for the follower to extend it. No writable timeline yet.
		return j, nil
	}

	timeline := ctl.Timeline
	if !found {
		timeline = 1
	}
	if replayedTL > timeline {
		// The control file lags the segments, e.g. a crash landed
		// between writing a promotion record and the control update.
		timeline = replayedTL
	}
	if err := j.writeControl(controlDoc{Timeline: timeline}); err != nil {
		return nil, err
	}
	if err := j.openSegment(timeline); err != nil {
		return nil, err
	}
	j.timeline = timeline
	j.state.setCurrent(timeline)
	metrics.SetJournalTimeline(uint32(timeline))
	return j, nil
}

// State exposes the replication progress shared with the control surface.
func (j *Journal) State() *RecoveryState {
	return j.state
}

// LastSeq returns the sequence number of the newest durable record.
func (j *Journal) LastSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastSeq
}

// Standby reports whether the journal is still following another daemon.
func (j *Journal) Standby() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.standby
}

// Append writes a new record on the current timeline and returns it. It
// fails with ErrStandby while the journal is following another daemon.
func (j *Journal) Append(kind RecordKind, worker string, pid int, detail string) (Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.standby {
		return Record{}, ErrStandby
	}
	rec := Record{
		Seq:      j.lastSeq + 1,
		Timeline: j.timeline,
		At:       time.Now().UTC(),
		Kind:     kind,
		Worker:   worker,
		PID:      pid,
		Detail:   detail,
	}
	if err := j.writeRecord(rec); err != nil {
		return Record{}, err
	}
	metrics.AddJournalRecord()
	return rec, nil
}

// Apply extends a standby journal with a record fetched from the upstream
// daemon. Records must arrive in exact sequence order; a gap aborts the
// apply so the follower can resynchronise.
func (j *Journal) Apply(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.standby {
		return ErrNotStandby
	}
	if rec.Seq != j.lastSeq+1 {
		return fmt.Errorf("%w: local history ends at %d, got record %d", ErrSequenceGap, j.lastSeq, rec.Seq)
	}
	if rec.Timeline == 0 {
		return fmt.Errorf("record %d carries no timeline", rec.Seq)
	}
	if rec.Timeline < j.timeline {
		return fmt.Errorf("record %d moves timeline backwards: %d < %d", rec.Seq, rec.Timeline, j.timeline)
	}
	if err := j.writeRecord(rec); err != nil {
		return err
	}
	j.state.setLastReplayed(rec.Timeline)
	metrics.AddJournalRecord()
	return nil
}

// Promote ends standby mode: the journal switches to a timeline one past
// everything it has seen locally or heard of from upstream, records the
// switch, and becomes writable. Returns the new timeline.
func (j *Journal) Promote() (TimelineID, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !j.standby {
		return 0, ErrNotStandby
	}

	top := j.timeline
	if rcv := j.state.LastReceived(); rcv > top {
		top = rcv
	}
	newTL := top + 1

	if err := j.writeControl(controlDoc{Timeline: newTL}); err != nil {
		return 0, err
	}
	if err := j.openSegment(newTL); err != nil {
		return 0, err
	}
	j.standby = false
	j.timeline = newTL
	j.state.setCurrent(newTL)
	metrics.SetJournalTimeline(uint32(newTL))

	rec := Record{
		Seq:      j.lastSeq + 1,
		Timeline: newTL,
		At:       time.Now().UTC(),
		Kind:     RecordPromoted,
		Detail:   fmt.Sprintf("promoted to timeline %d", newTL),
	}
	if err := j.writeRecord(rec); err != nil {
		return 0, err
	}
	metrics.AddJournalRecord()
	j.logger.Info("journal promoted", "timeline", uint32(newTL), "seq", rec.Seq)
	return newTL, nil
}

// Records returns up to limit records with sequence numbers greater than
// after, in order. It reads from the durable segments so a follower only
// ever sees records that survived a crash.
func (j *Journal) Records(after uint64, limit int) ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if limit <= 0 {
		limit = 100
	}

	timelines, err := j.listSegments()
	if err != nil {
		return nil, err
	}

	var out []Record
	for _, tl := range timelines {
		recs, _, err := j.readSegment(tl, false)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if rec.Seq <= after {
				continue
			}
			out = append(out, rec)
			if len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Close releases the open segment. The journal must not be used afterwards.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.seg == nil {
		return nil
	}
	err := j.seg.Close()
	j.seg = nil
	return err
}

func segmentName(tl TimelineID) string {
	return fmt.Sprintf("segment-%08d.jsonl", uint32(tl))
}

func (j *Journal) segmentPath(tl TimelineID) string {
	return path.Join(j.dir, segmentName(tl))
}

// writeRecord appends rec to the segment for its timeline, switching files
// when the timeline advances. Callers hold j.mu.
func (j *Journal) writeRecord(rec Record) error {
	if j.seg == nil || rec.Timeline != j.timeline {
		if err := j.openSegment(rec.Timeline); err != nil {
			return err
		}
		j.timeline = rec.Timeline
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %d: %w", rec.Seq, err)
	}
	data = append(data, '\n')
	if _, err := j.seg.Write(data); err != nil {
		return fmt.Errorf("append record %d: %w", rec.Seq, err)
	}
	if err := j.seg.Sync(); err != nil {
		return fmt.Errorf("sync segment: %w", err)
	}
	j.lastSeq = rec.Seq
	return nil
}

// openSegment opens the segment file for tl in append mode, closing any
// previously open segment. Callers hold j.mu.
func (j *Journal) openSegment(tl TimelineID) error {
	if j.seg != nil {
		if err := j.seg.Close(); err != nil {
			return fmt.Errorf("close segment: %w", err)
		}
		j.seg = nil
	}
	f, err := j.fs.OpenFile(j.segmentPath(tl), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open segment %s: %w", segmentName(tl), err)
	}
	j.seg = f
	return nil
}

func (j *Journal) readControl() (controlDoc, bool, error) {
	data, err := afero.ReadFile(j.fs, path.Join(j.dir, controlFile))
	if err != nil {
		if os.IsNotExist(err) {
			return controlDoc{}, false, nil
		}
		return controlDoc{}, false, fmt.Errorf("read journal control: %w", err)
	}
	var ctl controlDoc
	if err := yaml.Unmarshal(data, &ctl); err != nil {
		return controlDoc{}, false, fmt.Errorf("decode journal control: %w", err)
	}
	return ctl, true, nil
}

func (j *Journal) writeControl(ctl controlDoc) error {
	data, err := yaml.Marshal(ctl)
	if err != nil {
		return fmt.Errorf("encode journal control: %w", err)
	}
	tmp := path.Join(j.dir, controlFile+".tmp")
	if err := afero.WriteFile(j.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write journal control: %w", err)
	}
	if err := j.fs.Rename(tmp, path.Join(j.dir, controlFile)); err != nil {
		return fmt.Errorf("install journal control: %w", err)
	}
	return nil
}

// listSegments returns the timelines that have a segment on disk, ascending.
func (j *Journal) listSegments() ([]TimelineID, error) {
	infos, err := afero.ReadDir(j.fs, j.dir)
	if err != nil {
		return nil, fmt.Errorf("list journal dir: %w", err)
	}
	var timelines []TimelineID
	for _, info := range infos {
		m := segmentPattern.FindStringSubmatch(info.Name())
		if m == nil {
			continue
		}
		n, err := strconv.ParseUint(m[1], 10, 32)
		if err != nil {
			continue
		}
		timelines = append(timelines, TimelineID(n))
	}
	sort.Slice(timelines, func(a, b int) bool { return timelines[a] < timelines[b] })
	return timelines, nil
}

// recover scans every segment in timeline order, validating that sequence
// numbers form an unbroken chain, and reports the newest timeline and
// sequence found. A damaged tail on the newest segment is truncated; damage
// anywhere else is a hard error.
func (j *Journal) recover() (TimelineID, uint64, error) {
	timelines, err := j.listSegments()
	if err != nil {
		return 0, 0, err
	}

	var (
		lastTL  TimelineID
		lastSeq uint64
	)
	for i, tl := range timelines {
		if tl <= lastTL {
			return 0, 0, fmt.Errorf("journal segments out of order at timeline %d", tl)
		}
		newest := i == len(timelines)-1
		recs, goodLen, err := j.readSegment(tl, newest)
		if err != nil {
			return 0, 0, err
		}
		for _, rec := range recs {
			if lastSeq != 0 && rec.Seq != lastSeq+1 {
				return 0, 0, fmt.Errorf("journal hole in timeline %d: record %d follows %d", tl, rec.Seq, lastSeq)
			}
			if lastSeq == 0 && rec.Seq != 1 && i == 0 {
				return 0, 0, fmt.Errorf("journal starts at record %d, want 1", rec.Seq)
			}
			lastSeq = rec.Seq
		}
		if goodLen >= 0 {
			j.logger.Warn("truncating damaged journal tail",
				"segment", segmentName(tl), "offset", goodLen)
			if err := j.truncateSegment(tl, goodLen); err != nil {
				return 0, 0, err
			}
		}
		if len(recs) > 0 {
			lastTL = tl
		}
	}
	return lastTL, lastSeq, nil
}

// readSegment decodes a segment. When tolerateTail is true a damaged final
// line is dropped and its byte offset returned (-1 when the file is clean);
// otherwise damage is an error.
func (j *Journal) readSegment(tl TimelineID, tolerateTail bool) ([]Record, int, error) {
	data, err := afero.ReadFile(j.fs, j.segmentPath(tl))
	if err != nil {
		return nil, -1, fmt.Errorf("read segment %s: %w", segmentName(tl), err)
	}

	var recs []Record
	offset := 0
	for offset < len(data) {
		nl := bytes.IndexByte(data[offset:], '\n')
		if nl < 0 {
			if tolerateTail {
				return recs, offset, nil
			}
			return nil, -1, fmt.Errorf("segment %s has a truncated record", segmentName(tl))
		}
		line := data[offset : offset+nl]
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			if tolerateTail && offset+nl+1 >= len(data) {
				return recs, offset, nil
			}
			return nil, -1, fmt.Errorf("segment %s: bad record at offset %d: %w", segmentName(tl), offset, err)
		}
		if rec.Timeline != tl {
			return nil, -1, fmt.Errorf("segment %s contains record %d from timeline %d", segmentName(tl), rec.Seq, rec.Timeline)
		}
		recs = append(recs, rec)
		offset += nl + 1
	}
	return recs, -1, nil
}

func (j *Journal) truncateSegment(tl TimelineID, size int) error {
	f, err := j.fs.OpenFile(j.segmentPath(tl), os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open segment for truncate: %w", err)
	}
	defer f.Close()
	if err := f.Truncate(int64(size)); err != nil {
		return fmt.Errorf("truncate segment %s: %w", segmentName(tl), err)
	}
	return nil
}
