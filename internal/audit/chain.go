package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Log is the append-only hash-chained audit file. One Log is shared by
// all concurrent runs; Append holds an exclusive lock so sequence numbers
// and the hash chain are never skipped or duplicated, while verification
// and reads take a shared lock and observe a consistent prefix.
type Log struct {
	mu       sync.RWMutex
	path     string
	file     *os.File
	nextSeq  int64
	lastHash string
}

// Open creates or resumes the audit log at path. An existing file is
// scanned to recover the chain tail, and any line that is not valid JSON
// fails the open, since appending after an unreadable tail would fork the
// chain. Entries that parse but have been tampered with do not block
// opening; VerifyChain reports those.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	l := &Log{path: path, nextSeq: 0, lastHash: GenesisHash}

	entries, err := readEntries(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading existing audit log: %w", err)
		}
	} else if n := len(entries); n > 0 {
		l.nextSeq = entries[n-1].SequenceNumber + 1
		l.lastHash = entries[n-1].EntryHash
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	l.file = f
	return l, nil
}

// Close releases the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Append records one entry. This is the only mutating operation; it reads
// the last hash, binds the new entry to it, and writes the line before
// releasing the writer lock.
func (l *Log) Append(actor string, action Action, payload map[string]any) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.appendLocked(actor, action, payload)
}

func (l *Log) appendLocked(actor string, action Action, payload map[string]any) (Entry, error) {
	if l.file == nil {
		return Entry{}, fmt.Errorf("audit log is closed")
	}

	digest, err := payloadDigest(payload)
	if err != nil {
		return Entry{}, err
	}

	e := Entry{
		SequenceNumber: l.nextSeq,
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		Actor:          actor,
		Action:         action,
		Payload:        payload,
		PayloadDigest:  digest,
		PrevEntryHash:  l.lastHash,
	}
	e.EntryHash = entryHash(e)

	line, err := json.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("serializing audit entry: %w", err)
	}
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		return Entry{}, fmt.Errorf("writing audit entry: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return Entry{}, fmt.Errorf("flushing audit entry: %w", err)
	}

	l.nextSeq = e.SequenceNumber + 1
	l.lastHash = e.EntryHash
	return e, nil
}

// VerifyChain replays the chain from the genesis sentinel, recomputing
// every entry hash. It returns (true, -1) when the whole chain holds, or
// (false, i) where i is the 0-based index of the first entry whose stored
// and recomputed hashes differ. Verification never repairs.
func (l *Log) VerifyChain() (bool, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries, err := readEntries(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, -1, nil
		}
		return false, -1, err
	}
	return verify(entries)
}

// Verify checks a chain read from an arbitrary file, for external
// verification of exported or rotated logs.
func Verify(path string) (bool, int, error) {
	entries, err := readEntries(path)
	if err != nil {
		return false, -1, err
	}
	return verify(entries)
}

func verify(entries []Entry) (bool, int, error) {
	prev := GenesisHash
	for i, e := range entries {
		if e.PrevEntryHash != prev {
			return false, i, nil
		}
		if e.SequenceNumber != int64(i) {
			return false, i, nil
		}
		if e.Payload != nil {
			digest, err := payloadDigest(e.Payload)
			if err != nil {
				return false, i, err
			}
			if digest != e.PayloadDigest {
				return false, i, nil
			}
		}
		if entryHash(e) != e.EntryHash {
			return false, i, nil
		}
		prev = e.EntryHash
	}
	return true, -1, nil
}

// Entries returns a snapshot of the current chain.
func (l *Log) Entries() ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries, err := readEntries(l.path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return entries, nil
}

// Len returns the number of entries appended so far.
func (l *Log) Len() int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextSeq
}

// Reset rotates the current chain aside and starts a new one. The new
// chain's first entry is a chain_reset record carrying the final hash of
// the rotated chain, so the two remain externally linkable. This is the
// only sanctioned way to truncate an audit log.
func (l *Log) Reset(actor string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return Entry{}, fmt.Errorf("audit log is closed")
	}

	finalHash := l.lastHash
	rotated := ""
	if l.nextSeq > 0 {
		if err := l.file.Close(); err != nil {
			return Entry{}, fmt.Errorf("closing audit log for rotation: %w", err)
		}
		rotated = fmt.Sprintf("%s.%s", l.path, time.Now().UTC().Format("20060102T150405Z"))
		if err := os.Rename(l.path, rotated); err != nil {
			return Entry{}, fmt.Errorf("rotating audit log: %w", err)
		}
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return Entry{}, fmt.Errorf("starting new audit chain: %w", err)
		}
		l.file = f
	}

	l.nextSeq = 0
	l.lastHash = GenesisHash

	payload := map[string]any{
		"previous_chain_final_hash": finalHash,
	}
	if rotated != "" {
		payload["rotated_to"] = filepath.Base(rotated)
	}
	return l.appendLocked(actor, ActionChainReset, payload)
}

// entryHash computes SHA-256(prev_entry_hash || canonical(hashed fields)).
func entryHash(e Entry) string {
	canonical := canonicalFields(e)
	h := sha256.New()
	h.Write([]byte(e.PrevEntryHash))
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalFields serializes the hashed fields with sorted keys and no
// whitespace, the rule external tools replicate to verify independently.
func canonicalFields(e Entry) []byte {
	// Keys emitted in sorted order by construction.
	var b strings.Builder
	b.WriteString(`{"action":`)
	b.Write(mustJSON(string(e.Action)))
	b.WriteString(`,"actor":`)
	b.Write(mustJSON(e.Actor))
	b.WriteString(`,"payload_digest":`)
	b.Write(mustJSON(e.PayloadDigest))
	fmt.Fprintf(&b, `,"sequence_number":%d`, e.SequenceNumber)
	b.WriteString(`,"timestamp":`)
	b.Write(mustJSON(e.Timestamp))
	b.WriteString("}")
	return []byte(b.String())
}

func mustJSON(s string) []byte {
	out, _ := json.Marshal(s)
	return out
}

func readEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return entries, fmt.Errorf("audit entry %d is not valid JSON: %w", len(entries), err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("scanning audit log: %w", err)
	}
	return entries, nil
}
