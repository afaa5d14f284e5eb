// SPDX-License-Identifier: ice License 1.0

package query

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/jmoiron/sqlx"
	"github.com/nbd-wtf/go-nostr"

	"github.com/ChristianChiarulli/nostr-sync-relay/model"
)

type (
	// eventRow is the on-disk shape of the events table.
	eventRow struct {
		Seq       int64  `db:"seq"`
		ID        string `db:"id"`
		PubKey    string `db:"pubkey"`
		CreatedAt int64  `db:"created_at"`
		Kind      int    `db:"kind"`
		TagsJSON  string `db:"tags_json"`
		Content   string `db:"content"`
		Sig       string `db:"sig"`
	}

	tagRow struct {
		EventID  string `db:"event_id"`
		TagName  string `db:"tag_name"`
		TagValue string `db:"tag_value"`
	}

	// executor is satisfied by *sqlx.DB and *sqlx.Tx alike, so the store's
	// primitives run identically whether called standalone or from within
	// Atomically.
	executor interface {
		sqlx.ExtContext
		namedExecer
	}

	// Tx scopes every Store primitive to a single database/sql transaction.
	// client owns the statement cache that exec's prepared statements are
	// keyed into; it must be the same dbClient that exec was opened from,
	// or cached statements from one connection leak into another.
	Tx struct {
		exec   executor
		client *dbClient
	}
)

func toRow(ev *model.Event) (eventRow, error) {
	tagsJSON, err := json.Marshal(ev.Tags)
	if err != nil {
		return eventRow{}, errors.Wrap(err, "failed to marshal tags")
	}

	return eventRow{
		ID:        ev.ID,
		PubKey:    ev.PubKey,
		CreatedAt: int64(ev.CreatedAt),
		Kind:      ev.Kind,
		TagsJSON:  string(tagsJSON),
		Content:   ev.Content,
		Sig:       ev.Sig,
	}, nil
}

func fromRow(row eventRow) (*model.Event, error) {
	var tags nostr.Tags
	if err := json.Unmarshal([]byte(row.TagsJSON), &tags); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tags")
	}

	return &model.Event{Event: nostr.Event{
		ID:        row.ID,
		PubKey:    row.PubKey,
		CreatedAt: nostr.Timestamp(row.CreatedAt),
		Kind:      row.Kind,
		Tags:      tags,
		Content:   row.Content,
		Sig:       row.Sig,
	}}, nil
}

// tagIndexEntries extracts the Tag Index Entries for ev: single-letter
// ASCII tag names, keyed off the first two positions of each tag.
func tagIndexEntries(ev *model.Event) []tagRow {
	var entries []tagRow
	for _, tag := range ev.Tags {
		if len(tag) < 2 || !isSingleLetterTagName(tag[0]) {
			continue
		}
		entries = append(entries, tagRow{EventID: ev.ID, TagName: tag[0], TagValue: tag[1]})
	}

	return entries
}

func isSingleLetterTagName(name string) bool {
	if len(name) != 1 {
		return false
	}
	c := name[0]

	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// Atomically runs fn inside a single database transaction, committing on a
// nil return and rolling back otherwise. This is the sole mechanism the
// Ingest Pipeline uses to make its multi-step retention decisions atomic.
func Atomically(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := db().BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}

	if err = fn(&Tx{exec: sqlTx, client: db()}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return errors.Wrapf(err, "failed to roll back after: %v", rbErr)
		}

		return err
	}

	if err = sqlTx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// Insert assigns the next seq, stores ev and materializes its tag index
// entries, returning the assigned seq.
func (tx *Tx) Insert(ctx context.Context, ev *model.Event) (seq int64, err error) {
	row, err := toRow(ev)
	if err != nil {
		return 0, err
	}

	const insertSQL = `insert into events (id, pubkey, created_at, kind, tags_json, content, sig)
		values (:id, :pubkey, :created_at, :kind, :tags_json, :content, :sig)`
	result, err := tx.client.exec(ctx, tx.exec, insertSQL, row)
	if err != nil {
		return 0, errors.Wrap(err, "failed to insert event")
	}
	seq, err = result.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read assigned seq")
	}

	if err = tx.insertTagIndex(ctx, ev); err != nil {
		return 0, err
	}

	return seq, nil
}

func (tx *Tx) insertTagIndex(ctx context.Context, ev *model.Event) error {
	entries := tagIndexEntries(ev)
	if len(entries) == 0 {
		return nil
	}

	const insertTagSQL = `insert into event_tags (event_id, tag_name, tag_value) values (:event_id, :tag_name, :tag_value)`
	for _, entry := range entries {
		if _, err := tx.client.exec(ctx, tx.exec, insertTagSQL, entry); err != nil {
			return errors.Wrap(err, "failed to insert tag index entry")
		}
	}

	return nil
}

// GetByID returns the stored event with id, or nil if no such event exists.
func (tx *Tx) GetByID(ctx context.Context, id string) (*model.Event, error) {
	var row eventRow
	err := sqlx.GetContext(ctx, tx.exec, &row, `select seq, id, pubkey, created_at, kind, tags_json, content, sig from events where id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // absence is not an error here.
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get event by id: %v", id)
	}

	return fromRow(row)
}

// DeleteByID removes the stored event with id and its tag index entries.
// It is a no-op if no such event exists.
func (tx *Tx) DeleteByID(ctx context.Context, id string) error {
	arg := map[string]any{"id": id}
	if _, err := tx.client.exec(ctx, tx.exec, `delete from event_tags where event_id = :id`, arg); err != nil {
		return errors.Wrapf(err, "failed to delete tag index for: %v", id)
	}
	if _, err := tx.client.exec(ctx, tx.exec, `delete from events where id = :id`, arg); err != nil {
		return errors.Wrapf(err, "failed to delete event: %v", id)
	}

	return nil
}

// SeqByID returns the seq assigned to the stored event with id, and
// whether such an event exists at all.
func (tx *Tx) SeqByID(ctx context.Context, id string) (seq int64, found bool, err error) {
	err = sqlx.GetContext(ctx, tx.exec, &seq, `select seq from events where id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrapf(err, "failed to read seq for: %v", id)
	}

	return seq, true, nil
}

// FindReplaceable returns the currently stored event for (pubkey, kind), or
// nil if there is none.
func (tx *Tx) FindReplaceable(ctx context.Context, pubkey string, kind int) (*model.Event, error) {
	var row eventRow
	err := sqlx.GetContext(ctx, tx.exec,
		&row, `select seq, id, pubkey, created_at, kind, tags_json, content, sig from events where pubkey = ? and kind = ?`,
		pubkey, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find replaceable event")
	}

	return fromRow(row)
}

// FindAddressable returns the currently stored event for (pubkey, kind,
// dTag), or nil if there is none. A tag index row only exists for a tag
// with at least a name and a value position (see tagIndexEntries), so an
// addressable event with no d tag at all leaves no row to join against,
// while one with an explicit empty d tag leaves a row whose value is '';
// dTag == "" matches both, by the absence of any non-empty d tag row.
func (tx *Tx) FindAddressable(ctx context.Context, pubkey string, kind int, dTag string) (*model.Event, error) {
	const queryWithDTag = `select e.seq, e.id, e.pubkey, e.created_at, e.kind, e.tags_json, e.content, e.sig
		from events e
		join event_tags t on t.event_id = e.id and t.tag_name = 'd' and t.tag_value = ?
		where e.pubkey = ? and e.kind = ?`
	const queryWithoutDTag = `select e.seq, e.id, e.pubkey, e.created_at, e.kind, e.tags_json, e.content, e.sig
		from events e
		where e.pubkey = ? and e.kind = ?
		and not exists (select 1 from event_tags t where t.event_id = e.id and t.tag_name = 'd' and t.tag_value <> '')`

	var row eventRow
	var err error
	if dTag == "" {
		err = sqlx.GetContext(ctx, tx.exec, &row, queryWithoutDTag, pubkey, kind)
	} else {
		err = sqlx.GetContext(ctx, tx.exec, &row, queryWithDTag, dTag, pubkey, kind)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find addressable event")
	}

	return fromRow(row)
}

// PurgeDocument deletes every stored event matching (pubkey, kind, dTag)
// along with their tag index entries.
func (tx *Tx) PurgeDocument(ctx context.Context, pubkey string, kind int, dTag string) error {
	const selectIDs = `select e.id from events e
		join event_tags t on t.event_id = e.id and t.tag_name = 'd' and t.tag_value = ?
		where e.pubkey = ? and e.kind = ?`
	var ids []string
	if err := sqlx.SelectContext(ctx, tx.exec, &ids, selectIDs, dTag, pubkey, kind); err != nil {
		return errors.Wrap(err, "failed to list documents to purge")
	}

	for _, id := range ids {
		if err := tx.DeleteByID(ctx, id); err != nil {
			return err
		}
	}

	return nil
}

// LastSeq returns the highest seq ever assigned, or 0 if the store is empty.
func (tx *Tx) LastSeq(ctx context.Context) (int64, error) {
	var lastSeq sql.NullInt64
	if err := sqlx.GetContext(ctx, tx.exec, &lastSeq, `select max(seq) from events`); err != nil {
		return 0, errors.Wrap(err, "failed to read last seq")
	}

	return lastSeq.Int64, nil
}

// LastSeq is the non-transactional convenience wrapper used by the
// connection handler for the LASTSEQ command.
func LastSeq(ctx context.Context) (int64, error) {
	tx := &Tx{exec: db().DB, client: db()}

	return tx.LastSeq(ctx)
}

// GetByID is the non-transactional convenience wrapper.
func GetByID(ctx context.Context, id string) (*model.Event, error) {
	tx := &Tx{exec: db().DB, client: db()}

	return tx.GetByID(ctx, id)
}
