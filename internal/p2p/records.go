package p2p

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/ltlmaps/leap-contracts/internal/storage"
	"github.com/multiformats/go-multiaddr"
)

// Key prefixes inside the p2p database namespace.
const (
	banPrefix  = "ban/"
	peerPrefix = "peer/"
)

// Peer persistence tuning.
const (
	staleThreshold    = 24 * time.Hour
	persistInterval   = 5 * time.Minute
	maxPersistedPeers = 500
)

// BanRecord is a persisted ban.
type BanRecord struct {
	ID        string `json:"id"` // base58 peer ID
	Reason    string `json:"reason"`
	Score     int    `json:"score"` // offense score that triggered the ban
	BannedAt  int64  `json:"banned_at"`
	ExpiresAt int64  `json:"expires_at"` // 0 = permanent
}

func (r *BanRecord) key() string { return r.ID }

func (r *BanRecord) expiredAt(now time.Time) bool {
	return r.ExpiresAt > 0 && now.Unix() >= r.ExpiresAt
}

// IsExpired reports whether a temporary ban has run out.
func (r *BanRecord) IsExpired() bool {
	return r.expiredAt(time.Now())
}

// PeerRecord is a peer remembered across restarts.
type PeerRecord struct {
	ID       string   `json:"id"`
	Addrs    []string `json:"addrs"`
	LastSeen int64    `json:"last_seen"`
	Source   string   `json:"source"` // how the peer was first found
}

func (r *PeerRecord) key() string { return r.ID }

// keyed is a pointer to a record that knows its own key.
type keyed[T any] interface {
	*T
	key() string
}

// recordStore is a table of JSON records under one key prefix.
type recordStore[T any, P keyed[T]] struct {
	db     storage.DB
	prefix string
}

func (s recordStore[T, P]) dbKey(id string) []byte {
	return []byte(s.prefix + id)
}

func (s recordStore[T, P]) get(id string) (*T, error) {
	data, err := s.db.Get(s.dbKey(id))
	if err != nil {
		return nil, err
	}
	rec := new(T)
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decode %s%s: %w", s.prefix, id, err)
	}
	return rec, nil
}

func (s recordStore[T, P]) put(rec *T) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", s.prefix, err)
	}
	return s.db.Put(s.dbKey(P(rec).key()), data)
}

func (s recordStore[T, P]) has(id string) (bool, error) {
	return s.db.Has(s.dbKey(id))
}

func (s recordStore[T, P]) delete(id string) error {
	return s.db.Delete(s.dbKey(id))
}

// each calls fn for every record that decodes.
func (s recordStore[T, P]) each(fn func(*T) error) error {
	return s.db.ForEach([]byte(s.prefix), func(_, value []byte) error {
		rec := new(T)
		if json.Unmarshal(value, rec) != nil {
			return nil
		}
		return fn(rec)
	})
}

func (s recordStore[T, P]) count() (int, error) {
	n := 0
	err := s.db.ForEach([]byte(s.prefix), func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// sweep deletes the records drop selects and any that no longer decode.
func (s recordStore[T, P]) sweep(drop func(*T) bool) (int, error) {
	var doomed [][]byte
	err := s.db.ForEach([]byte(s.prefix), func(key, value []byte) error {
		rec := new(T)
		if json.Unmarshal(value, rec) != nil || drop(rec) {
			doomed = append(doomed, key)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", s.prefix, err)
	}
	for _, k := range doomed {
		if err := s.db.Delete(k); err != nil {
			return 0, fmt.Errorf("delete %s: %w", k, err)
		}
	}
	return len(doomed), nil
}

// BanStore persists bans.
type BanStore struct {
	recs recordStore[BanRecord, *BanRecord]
}

// NewBanStore returns a ban store over db.
func NewBanStore(db storage.DB) *BanStore {
	return &BanStore{recs: recordStore[BanRecord, *BanRecord]{db: db, prefix: banPrefix}}
}

// Get returns the ban on id, or storage.ErrNotFound.
func (bs *BanStore) Get(id peer.ID) (*BanRecord, error) { return bs.recs.get(id.String()) }

// Put stores rec, replacing any earlier ban on the same peer.
func (bs *BanStore) Put(rec *BanRecord) error { return bs.recs.put(rec) }

// Delete lifts the stored ban on id.
func (bs *BanStore) Delete(id peer.ID) error { return bs.recs.delete(id.String()) }

// ForEach visits every stored ban.
func (bs *BanStore) ForEach(fn func(*BanRecord) error) error { return bs.recs.each(fn) }

// PruneExpired deletes lapsed bans and reports how many went.
func (bs *BanStore) PruneExpired() (int, error) {
	now := time.Now()
	return bs.recs.sweep(func(r *BanRecord) bool { return r.expiredAt(now) })
}

// PeerStore remembers peers so a restarted node can redial them.
type PeerStore struct {
	recs  recordStore[PeerRecord, *PeerRecord]
	limit int
}

// NewPeerStore returns a peer store over db.
func NewPeerStore(db storage.DB) *PeerStore {
	return &PeerStore{
		recs:  recordStore[PeerRecord, *PeerRecord]{db: db, prefix: peerPrefix},
		limit: maxPersistedPeers,
	}
}

// Save stores rec. Updates always land; a new peer is dropped silently once
// the store is full.
func (ps *PeerStore) Save(rec PeerRecord) error {
	known, err := ps.recs.has(rec.ID)
	if err != nil {
		return fmt.Errorf("check peer: %w", err)
	}
	if !known {
		n, err := ps.recs.count()
		if err != nil {
			return fmt.Errorf("count peers: %w", err)
		}
		if n >= ps.limit {
			return nil
		}
	}
	return ps.recs.put(&rec)
}

// Load returns the record for id.
func (ps *PeerStore) Load(id peer.ID) (*PeerRecord, error) {
	rec, err := ps.recs.get(id.String())
	if err != nil {
		return nil, fmt.Errorf("load peer: %w", err)
	}
	return rec, nil
}

// LoadAll returns every stored peer.
func (ps *PeerStore) LoadAll() ([]PeerRecord, error) {
	var out []PeerRecord
	err := ps.recs.each(func(r *PeerRecord) error {
		out = append(out, *r)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load peers: %w", err)
	}
	return out, nil
}

// Delete forgets id.
func (ps *PeerStore) Delete(id peer.ID) error { return ps.recs.delete(id.String()) }

// PruneStale forgets peers not seen within threshold.
func (ps *PeerStore) PruneStale(threshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-threshold).Unix()
	return ps.recs.sweep(func(r *PeerRecord) bool { return r.LastSeen < cutoff })
}

// Count returns the number of stored peers.
func (ps *PeerStore) Count() (int, error) {
	n, err := ps.recs.count()
	if err != nil {
		return 0, fmt.Errorf("count peers: %w", err)
	}
	return n, nil
}

// ── Node persistence ────────────────────────────────────────────────

// persistPeers writes every connected peer with its known addresses.
func (n *Node) persistPeers() {
	if n.peerStore == nil || n.host == nil {
		return
	}
	now := time.Now().Unix()
	for _, p := range n.PeerList() {
		rec := PeerRecord{ID: p.ID.String(), LastSeen: now, Source: p.Source}
		for _, a := range n.host.Peerstore().Addrs(p.ID) {
			rec.Addrs = append(rec.Addrs, a.String())
		}
		if err := n.peerStore.Save(rec); err != nil {
			n.logger.Debug().Err(err).Str("peer", shortID(p.ID)).Msg("Persist peer failed")
		}
	}
}

// redialPersisted reconnects to peers remembered from earlier runs.
func (n *Node) redialPersisted() {
	if n.peerStore == nil {
		return
	}
	if _, err := n.peerStore.PruneStale(staleThreshold); err != nil {
		n.logger.Debug().Err(err).Msg("Prune stale peers failed")
	}
	records, err := n.peerStore.LoadAll()
	if err != nil {
		return
	}
	for _, rec := range records {
		info, ok := rec.addrInfo()
		if !ok {
			continue
		}
		_ = n.dial(info, rec.Source)
	}
}

// addrInfo rebuilds the dialable form of a record.
func (r *PeerRecord) addrInfo() (peer.AddrInfo, bool) {
	id, err := peer.Decode(r.ID)
	if err != nil {
		return peer.AddrInfo{}, false
	}
	info := peer.AddrInfo{ID: id}
	for _, s := range r.Addrs {
		if a, err := multiaddr.NewMultiaddr(s); err == nil {
			info.Addrs = append(info.Addrs, a)
		}
	}
	return info, len(info.Addrs) > 0
}

func (n *Node) runPersistLoop() {
	ticker := time.NewTicker(persistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.persistPeers()
			n.peerStore.PruneStale(staleThreshold)
		}
	}
}
