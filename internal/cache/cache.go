// Package cache implements the order cache of §4.3: a filesystem-backed
// store of active HL7 ORM messages with per-patient capacity eviction and
// time-based expiry, safe under concurrent Put/List/Sweep.
package cache

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/healthbridge/ormworklist/internal/hl7msg"
	"github.com/sirupsen/logrus"
)

const activeSubdir = "active"
const hl7Ext = ".hl7"
const tmpExt = ".tmp"

// Cache is the order cache. Mutations (Put, Sweep) are serialized by mu;
// reads (List, Exists) take no lock and must tolerate concurrent mutation,
// per §4.3 and §5.
type Cache struct {
	root          string
	activeDir     string
	maxPerPatient int
	log           *logrus.Entry

	mu sync.Mutex
}

// New ensures <root>/active exists and returns a ready Cache.
func New(root string, maxPerPatient int, log *logrus.Entry) (*Cache, error) {
	activeDir := filepath.Join(root, activeSubdir)
	if err := os.MkdirAll(activeDir, 0o755); err != nil {
		return nil, &IOError{Op: "mkdir active", Err: err}
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Cache{
		root:          root,
		activeDir:     activeDir,
		maxPerPatient: maxPerPatient,
		log:           log.WithField("component", "cache"),
	}, nil
}

func (c *Cache) path(id string) string { return filepath.Join(c.activeDir, id+hl7Ext) }

// Put stores raw as an accepted ORM and returns its assigned UUID. It
// enforces the per-patient cap by evicting the oldest order for the same
// patient before writing when the cap would otherwise be exceeded.
func (c *Cache) Put(raw string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, controlID := deriveID(raw)
	patientID := derivePatientID(raw)

	if c.maxPerPatient > 0 && patientID != "" {
		if err := c.enforceCapLocked(patientID, id); err != nil {
			c.log.WithError(err).Warn("per-patient cap enforcement failed")
		}
	}

	if err := c.writeAtomic(id, raw); err != nil {
		return "", err
	}

	c.log.WithFields(logrus.Fields{
		"id": id, "patient_id": patientID, "control_id": controlID,
	}).Debug("order stored")
	return id, nil
}

func deriveID(raw string) (id, controlID string) {
	if msg, err := hl7msg.Parse(raw); err == nil {
		controlID = msg.ControlID
	}
	if controlID != "" {
		return uuid.NewSHA1(uuid.NameSpaceOID, []byte(controlID)).String(), controlID
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(raw)).String(), ""
}

func derivePatientID(raw string) string {
	msg, err := hl7msg.Parse(raw)
	if err != nil {
		return ""
	}
	return hl7msg.PatientID(msg)
}

// writeAtomic stages content at <id>.hl7.tmp then renames it into place,
// removing any existing file at the target path first.
func (c *Cache) writeAtomic(id, raw string) error {
	target := c.path(id)
	tmp := target + tmpExt

	if err := os.WriteFile(tmp, []byte(raw), 0o644); err != nil {
		return &IOError{Op: "write staged order", Err: err}
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return &IOError{Op: "remove existing order", Err: err}
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return &IOError{Op: "rename staged order", Err: err}
	}
	return nil
}

// enforceCapLocked removes the oldest orders for patientID, excluding
// keepID (the order about to be written, which replaces any file with the
// same id), until writing keepID will not take the count over the
// configured cap. Must be called with mu held.
func (c *Cache) enforceCapLocked(patientID, keepID string) error {
	entries, err := c.listLocked()
	if err != nil {
		return err
	}

	var forPatient []*Order
	for _, o := range entries {
		if o.PatientID == patientID && o.ID != keepID {
			forPatient = append(forPatient, o)
		}
	}

	sort.Slice(forPatient, func(i, j int) bool {
		if !forPatient[i].ReceivedAt.Equal(forPatient[j].ReceivedAt) {
			return forPatient[i].ReceivedAt.Before(forPatient[j].ReceivedAt)
		}
		return forPatient[i].ID < forPatient[j].ID // tie-break: smaller UUID is older
	})

	excess := len(forPatient) + 1 - c.maxPerPatient
	for i := 0; i < excess; i++ {
		victim := forPatient[i]
		if err := os.Remove(c.path(victim.ID)); err != nil && !os.IsNotExist(err) {
			return &IOError{Op: "evict over-cap order", Err: err}
		}
	}
	return nil
}

// listLocked is List's logic reused while mu is already held by Put.
func (c *Cache) listLocked() ([]*Order, error) {
	return c.readActive()
}

// Exists reports whether id has an active (non-staged) file.
func (c *Cache) Exists(id string) bool {
	_, err := os.Stat(c.path(id))
	return err == nil
}

// List returns every order currently in active/. Directory enumeration
// is a snapshot; a file that vanishes before it can be opened is skipped
// rather than treated as an error, per §4.3.
func (c *Cache) List() ([]*Order, error) {
	return c.readActive()
}

func (c *Cache) readActive() ([]*Order, error) {
	entries, err := os.ReadDir(c.activeDir)
	if err != nil {
		return nil, &IOError{Op: "read active dir", Err: err}
	}

	orders := make([]*Order, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, hl7Ext) || strings.HasSuffix(name, tmpExt) {
			continue
		}

		order, ok, err := c.readOne(name)
		if err != nil {
			return nil, err
		}
		if ok {
			orders = append(orders, order)
		}
	}
	return orders, nil
}

func (c *Cache) readOne(name string) (order *Order, ok bool, err error) {
	full := filepath.Join(c.activeDir, name)

	info, statErr := os.Stat(full)
	if os.IsNotExist(statErr) {
		return nil, false, nil // vanished between enumeration and stat
	}
	if statErr != nil {
		return nil, false, &IOError{Op: "stat order", Err: statErr}
	}

	data, readErr := os.ReadFile(full)
	if os.IsNotExist(readErr) {
		return nil, false, nil // vanished between stat and open
	}
	if readErr != nil {
		return nil, false, &IOError{Op: "read order", Err: readErr}
	}

	id := strings.TrimSuffix(name, hl7Ext)
	raw := string(data)
	msg, parseErr := hl7msg.Parse(raw)

	order = &Order{
		ID:         id,
		Raw:        raw,
		ReceivedAt: info.ModTime().UTC(),
	}
	if parseErr == nil {
		order.PatientID = hl7msg.PatientID(msg)
		order.ControlID = msg.ControlID
	}
	return order, true, nil
}

// SweepExpired removes orders whose file mtime is older than
// now-hours, returning the count removed.
func (c *Cache) SweepExpired(hours int) (int, error) {
	return c.sweepOlderThan(time.Duration(hours) * time.Hour)
}

// SweepOld is SweepExpired's retention-days counterpart, used by the
// cache janitor distinct from order expiry (§4.3/§4.7).
func (c *Cache) SweepOld(days int) (int, error) {
	return c.sweepOlderThan(time.Duration(days) * 24 * time.Hour)
}

func (c *Cache) sweepOlderThan(horizon time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cutoff := time.Now().Add(-horizon)
	entries, err := os.ReadDir(c.activeDir)
	if err != nil {
		return 0, &IOError{Op: "read active dir", Err: err}
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, hl7Ext) || strings.HasSuffix(name, tmpExt) {
			continue
		}

		full := filepath.Join(c.activeDir, name)
		info, err := os.Stat(full)
		if err != nil {
			if !os.IsNotExist(err) {
				c.log.WithError(err).WithField("file", name).Warn("sweep: stat failed")
			}
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(full); err != nil {
			if !os.IsNotExist(err) {
				c.log.WithError(err).WithField("file", name).Warn("sweep: remove failed")
			}
			continue
		}
		removed++
	}
	return removed, nil
}

// Root returns the cache's base directory, for diagnostics.
func (c *Cache) Root() string { return c.root }
