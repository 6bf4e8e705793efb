package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openwager/betpool/internal/domain"
)

// archivePageSize bounds how many index entries are fetched per round trip.
const archivePageSize = 500

// archivedBet is the JSONL record written for a settled bet. Amounts are
// decimal strings.
type archivedBet struct {
	ID             int64     `json:"id"`
	Creator        string    `json:"creator"`
	Resolver       string    `json:"resolver"`
	Question       string    `json:"question"`
	Deadline       time.Time `json:"deadline"`
	YesTotal       string    `json:"yes_total"`
	NoTotal        string    `json:"no_total"`
	Resolved       bool      `json:"resolved"`
	Outcome        string    `json:"outcome,omitempty"`
	RefundsStarted bool      `json:"refunds_started"`
	CreatedAt      time.Time `json:"created_at"`
	ClaimedYes     string    `json:"claimed_yes"`
	ClaimedNo      string    `json:"claimed_no"`
	RefundedYes    string    `json:"refunded_yes"`
	RefundedNo     string    `json:"refunded_no"`
}

// Archiver snapshots settled bets and old audit entries to blob storage as
// JSONL. It never deletes from the primary store; the ledger stays the
// system of record and the archive is a cold copy.
type Archiver struct {
	writer domain.BlobWriter
	ledger domain.LedgerStore
	index  domain.Index
	audit  domain.AuditStore
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, ledger domain.LedgerStore, index domain.Index, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer: writer,
		ledger: ledger,
		index:  index,
		audit:  audit,
	}
}

// ArchiveSettledBets uploads every bet that finished before the cutoff,
// meaning it resolved or its refund window opened and someone refunded, with
// a deadline before the cutoff. The archive lands at
// archive/bets/YYYY-MM.jsonl and the run is recorded in the audit log. It
// returns the number of records written.
func (a *Archiver) ArchiveSettledBets(ctx context.Context, before time.Time) (int64, error) {
	var records []archivedBet

	for offset := 0; ; offset += archivePageSize {
		ids, err := a.index.All(ctx, domain.ListOpts{Limit: archivePageSize, Offset: offset})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive bets index: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		bets, err := a.ledger.Bets(ctx, ids)
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive bets fetch: %w", err)
		}

		for _, b := range bets {
			if !b.Resolved && !b.RefundsStarted {
				continue
			}
			if !b.Deadline.Before(before) {
				continue
			}

			stats, err := a.ledger.Stats(ctx, b.ID)
			if err != nil {
				return 0, fmt.Errorf("s3blob: archive bets stats for %d: %w", b.ID, err)
			}
			records = append(records, archivedBet{
				ID:             b.ID,
				Creator:        b.Creator,
				Resolver:       b.Resolver,
				Question:       b.Question,
				Deadline:       b.Deadline,
				YesTotal:       b.YesTotal.String(),
				NoTotal:        b.NoTotal.String(),
				Resolved:       b.Resolved,
				Outcome:        string(b.Outcome),
				RefundsStarted: b.RefundsStarted,
				CreatedAt:      b.CreatedAt,
				ClaimedYes:     stats.ClaimedYes.String(),
				ClaimedNo:      stats.ClaimedNo.String(),
				RefundedYes:    stats.RefundedYes.String(),
				RefundedNo:     stats.RefundedNo.String(),
			})
		}

		if len(ids) < archivePageSize {
			break
		}
	}

	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bets marshal: %w", err)
	}

	path := archivePath("bets", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive bets upload: %w", err)
	}

	count := int64(len(records))
	if err := a.audit.Log(ctx, domain.EventArchiveComplete, map[string]any{
		"kind":   "bets",
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive bets audit log: %w", err)
	}

	return count, nil
}

// ArchiveAuditLog uploads audit entries recorded before the cutoff to
// archive/audit/YYYY-MM.jsonl and returns the number of records written.
func (a *Archiver) ArchiveAuditLog(ctx context.Context, before time.Time) (int64, error) {
	var entries []domain.AuditEntry

	for offset := 0; ; offset += archivePageSize {
		page, err := a.audit.ListBefore(ctx, before, domain.ListOpts{Limit: archivePageSize, Offset: offset})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
		}
		entries = append(entries, page...)
		if len(page) < archivePageSize {
			break
		}
	}

	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	return int64(len(entries)), nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/bets/2025-01.jsonl
//	archive/audit/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
