// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"maps"
	"slices"

	"github.com/BSWANG/v6d/lib/objectid"
	"github.com/BSWANG/v6d/lib/objmeta"
	"github.com/BSWANG/v6d/lib/storeerr"
)

// DeleteOptions controls how far a delete reaches.
type DeleteOptions struct {
	// Force removes targets even while other objects reference them.
	// Those referrers keep a member reference that no longer resolves.
	Force bool
	// Deep removes members recursively. Without Force, a member that
	// is still referenced from outside the removal is kept.
	Deep bool
}

// DefaultDeleteOptions is what a delete does when the caller does not
// choose: refuse to break referrers, and tear down members.
var DefaultDeleteOptions = DeleteOptions{Force: false, Deep: true}

// Removal describes the effect of a delete.
type Removal struct {
	// Removed lists every record removed, targets and members, sorted.
	Removed []objectid.ObjectID
	// Blobs lists the removed blobs, whose arena spans must be freed.
	Blobs []objectid.ObjectID
	// Persisted lists the removed records that were visible
	// cluster-wide and must be withdrawn from the registry.
	Persisted []objectid.ObjectID
}

// Delete removes ids according to options. The whole removal is planned
// before anything changes: any missing target fails with NotFound, and
// without Force any target still referenced from outside the removal
// fails with StillReferenced, in both cases leaving everything in place.
//
// Blobs attached directly to a removed object are removed even when
// Deep is not set, under the same Force rule as any other member.
func (c *Catalog) Delete(ids []objectid.ObjectID, options DeleteOptions) (Removal, error) {
	removal := make(map[objectid.ObjectID]bool, len(ids))
	for _, id := range ids {
		if id.IsEmptyBlob() {
			continue
		}
		if _, ok := c.records[id]; !ok {
			return Removal{}, storeerr.New(storeerr.NotFound, "object %s does not exist", id)
		}
		removal[id] = true
	}
	targets := slices.Sorted(maps.Keys(removal))

	c.expand(removal, targets, options)

	if !options.Force {
		for _, target := range targets {
			for referrer := range c.referrers[target] {
				if !removal[referrer] {
					return Removal{}, storeerr.New(storeerr.StillReferenced,
						"object %s is still referenced by %s", target, referrer)
				}
			}
		}
	}

	return c.remove(removal), nil
}

// expand adds the members a delete takes with it. Without Force a
// member joins only once all of its referrers are in the removal, which
// is why expansion repeats until nothing changes.
func (c *Catalog) expand(removal map[objectid.ObjectID]bool, targets []objectid.ObjectID, options DeleteOptions) {
	eligible := func(member objectid.ObjectID) bool {
		if member.IsEmptyBlob() || removal[member] {
			return false
		}
		if _, ok := c.records[member]; !ok {
			return false
		}
		if options.Force {
			return true
		}
		for referrer := range c.referrers[member] {
			if !removal[referrer] {
				return false
			}
		}
		return true
	}

	if !options.Deep {
		for _, target := range targets {
			for _, member := range c.records[target].MemberIDs() {
				if member.IsBlob() && eligible(member) {
					removal[member] = true
				}
			}
		}
		return
	}

	for changed := true; changed; {
		changed = false
		for _, id := range slices.Sorted(maps.Keys(removal)) {
			for _, member := range c.records[id].MemberIDs() {
				if eligible(member) {
					removal[member] = true
					changed = true
				}
			}
		}
	}
}

func (c *Catalog) remove(removal map[objectid.ObjectID]bool) Removal {
	var result Removal
	for _, id := range slices.Sorted(maps.Keys(removal)) {
		record := c.records[id]
		c.unlink(record)
		delete(c.records, id)
		delete(c.referrers, id)
		result.Removed = append(result.Removed, id)
		if record.IsBlob() {
			result.Blobs = append(result.Blobs, id)
		}
		if record.Persisted {
			result.Persisted = append(result.Persisted, id)
		}
	}
	return result
}

// Clear removes every record.
func (c *Catalog) Clear() Removal {
	all := make(map[objectid.ObjectID]bool, len(c.records))
	for id := range c.records {
		all[id] = true
	}
	return c.remove(all)
}

// Records returns a copy of every record, in id order.
func (c *Catalog) Records() []objmeta.Record {
	records := make([]objmeta.Record, 0, len(c.records))
	for _, id := range slices.Sorted(maps.Keys(c.records)) {
		records = append(records, c.records[id].Clone())
	}
	return records
}
