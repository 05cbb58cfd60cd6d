package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/bobg/sqlutil"
	"github.com/chain/txvm/errors"
	"github.com/chain/txvm/protocol/bc"

	"github.com/Kleo-p/algo-wear"
)

// ErrNotFound is the root of errors for missing rows.
var ErrNotFound = errors.New("not found")

// DB is satisfied by both *sql.DB and *sql.Tx.
type DB interface {
	sqlutil.QueryerContext
	sqlutil.ExecerContext
}

// Init creates the schema if needed and writes the genesis round
// when the db holds no rounds yet.
func Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return errors.Wrap(err, "creating db schema")
	}
	var round uint64
	err = db.QueryRowContext(ctx, "SELECT round FROM rounds ORDER BY round DESC LIMIT 1").Scan(&round)
	if err == sql.ErrNoRows {
		_, err = db.ExecContext(ctx, "INSERT OR IGNORE INTO rounds (round, time_ms) VALUES (1, $1)", bc.Millis(time.Now()))
		return errors.Wrap(err, "writing genesis round to db")
	}
	return errors.Wrap(err, "getting latest round")
}

// Height returns the number of the latest closed round.
func Height(ctx context.Context, db DB) (uint64, error) {
	var height uint64
	err := db.QueryRowContext(ctx, "SELECT MAX(round) FROM rounds").Scan(&height)
	return height, errors.Wrap(err, "getting latest round")
}

// AddGroup records an accepted group as member seq of an open round.
func AddGroup(ctx context.Context, db DB, round uint64, seq int, bits []byte) error {
	const q = `INSERT INTO round_groups (round, seq, bits) VALUES ($1, $2, $3)`
	_, err := db.ExecContext(ctx, q, round, seq, bits)
	return errors.Wrapf(err, "writing group %d of round %d", seq, round)
}

// CountGroups returns how many groups round holds so far.
func CountGroups(ctx context.Context, db DB, round uint64) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM round_groups WHERE round = $1", round).Scan(&n)
	return n, errors.Wrapf(err, "counting groups in round %d", round)
}

// CloseRound marks round as closed at timeMS.
func CloseRound(ctx context.Context, db DB, round, timeMS uint64) error {
	_, err := db.ExecContext(ctx, "INSERT INTO rounds (round, time_ms) VALUES ($1, $2)", round, timeMS)
	return errors.Wrapf(err, "closing round %d", round)
}

// GetRound returns the close time and the encoded groups of a closed round.
func GetRound(ctx context.Context, db DB, round uint64) (uint64, [][]byte, error) {
	var timeMS uint64
	err := db.QueryRowContext(ctx, "SELECT time_ms FROM rounds WHERE round = $1", round).Scan(&timeMS)
	if err == sql.ErrNoRows {
		return 0, nil, errors.WithDetailf(ErrNotFound, "round %d", round)
	}
	if err != nil {
		return 0, nil, errors.Wrapf(err, "reading round %d from db", round)
	}
	var groups [][]byte
	const q = `SELECT bits FROM round_groups WHERE round = $1 ORDER BY seq`
	err = sqlutil.ForQueryRows(ctx, db, q, round, func(bits []byte) {
		groups = append(groups, bits)
	})
	return timeMS, groups, errors.Wrapf(err, "reading groups of round %d", round)
}

// App is an application's host-level record.
type App struct {
	ID           uint64       `json:"id"`
	Deployer     wear.Address `json:"deployer"`
	CreatedRound uint64       `json:"created_round"`
	Deleted      bool         `json:"deleted"`
}

// GetApp reads an application record.
func GetApp(ctx context.Context, db DB, id uint64) (*App, error) {
	var (
		deployer []byte
		app      = App{ID: id}
	)
	const q = `SELECT deployer, created_round, deleted FROM apps WHERE app_id = $1`
	err := db.QueryRowContext(ctx, q, id).Scan(&deployer, &app.CreatedRound, &app.Deleted)
	if err == sql.ErrNoRows {
		return nil, errors.WithDetailf(ErrNotFound, "app %d", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading app %d", id)
	}
	app.Deployer, err = wear.AddressFromBytes(deployer)
	return &app, errors.Wrapf(err, "decoding deployer of app %d", id)
}

// PutApp inserts or replaces an application record.
func PutApp(ctx context.Context, db DB, app *App) error {
	const q = `INSERT OR REPLACE INTO apps (app_id, deployer, created_round, deleted) VALUES ($1, $2, $3, $4)`
	_, err := db.ExecContext(ctx, q, app.ID, app.Deployer[:], app.CreatedRound, app.Deleted)
	return errors.Wrapf(err, "writing app %d", app.ID)
}

// NextAppID returns the ID the next created application receives.
func NextAppID(ctx context.Context, db DB) (uint64, error) {
	var max sql.NullInt64
	err := db.QueryRowContext(ctx, "SELECT MAX(app_id) FROM apps").Scan(&max)
	if err != nil {
		return 0, errors.Wrap(err, "getting highest app id")
	}
	return uint64(max.Int64) + 1, nil
}

// LoadGlobals reads an application's global state into a Mem.
func LoadGlobals(ctx context.Context, db DB, appID uint64) (*Mem, error) {
	m := NewMem()
	const q = `SELECT key, kind, bits FROM globals WHERE app_id = $1`
	err := sqlutil.ForQueryRows(ctx, db, q, appID, func(key string, kind int, bits []byte) error {
		v, err := wear.DecodeValue(wear.ValueKind(kind), bits)
		if err != nil {
			return errors.Wrapf(err, "decoding %s", key)
		}
		return m.Put(key, v)
	})
	return m, errors.Wrapf(err, "loading globals of app %d", appID)
}

// SaveGlobals writes vals into an application's global state.
func SaveGlobals(ctx context.Context, db DB, appID uint64, vals map[string]wear.Value) error {
	const q = `INSERT OR REPLACE INTO globals (app_id, key, kind, bits) VALUES ($1, $2, $3, $4)`
	for k, v := range vals {
		_, err := db.ExecContext(ctx, q, appID, k, int(v.Kind), v.Encode())
		if err != nil {
			return errors.Wrapf(err, "writing %s of app %d", k, appID)
		}
	}
	return nil
}

// DeleteGlobals removes an application's global state.
func DeleteGlobals(ctx context.Context, db DB, appID uint64) error {
	_, err := db.ExecContext(ctx, "DELETE FROM globals WHERE app_id = $1", appID)
	return errors.Wrapf(err, "deleting globals of app %d", appID)
}

// Balance returns an account's balance. Unknown accounts hold zero.
func Balance(ctx context.Context, db DB, addr wear.Address) (uint64, error) {
	var bits []byte
	err := db.QueryRowContext(ctx, "SELECT balance FROM accounts WHERE address = $1", addr[:]).Scan(&bits)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrapf(err, "reading balance of %s", addr)
	}
	return wear.Btoi(bits)
}

// SetBalance writes an account's balance.
func SetBalance(ctx context.Context, db DB, addr wear.Address, balance uint64) error {
	const q = `INSERT OR REPLACE INTO accounts (address, balance) VALUES ($1, $2)`
	_, err := db.ExecContext(ctx, q, addr[:], wear.Itob(balance))
	return errors.Wrapf(err, "writing balance of %s", addr)
}

// PinHeight returns the last round a pin processed,
// creating the pin at zero if it does not exist.
func PinHeight(ctx context.Context, db DB, name string) (uint64, error) {
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO pins (name, round) VALUES ($1, 0)`, name)
	if err != nil {
		return 0, errors.Wrapf(err, "creating pin %s", name)
	}
	var round uint64
	err = db.QueryRowContext(ctx, `SELECT round FROM pins WHERE name = $1`, name).Scan(&round)
	return round, errors.Wrapf(err, "getting height of pin %s", name)
}

// SetPinHeight records that a pin has processed round.
func SetPinHeight(ctx context.Context, db DB, name string, round uint64) error {
	_, err := db.ExecContext(ctx, `UPDATE pins SET round = $1 WHERE name = $2`, round, name)
	return errors.Wrapf(err, "updating pin %s after round %d", name, round)
}

// AddListing indexes a created application as a listing.
func AddListing(ctx context.Context, db DB, appID, round uint64) error {
	_, err := db.ExecContext(ctx, `INSERT OR IGNORE INTO listings (app_id, round) VALUES ($1, $2)`, appID, round)
	return errors.Wrapf(err, "indexing listing %d", appID)
}

// LiveListings returns the IDs of indexed listings whose application
// has not been deleted, oldest first.
func LiveListings(ctx context.Context, db DB) ([]uint64, error) {
	var ids []uint64
	const q = `SELECT l.app_id FROM listings l JOIN apps a ON a.app_id = l.app_id WHERE a.deleted = 0 ORDER BY l.app_id`
	err := sqlutil.ForQueryRows(ctx, db, q, func(id uint64) {
		ids = append(ids, id)
	})
	return ids, errors.Wrap(err, "listing indexed apps")
}
