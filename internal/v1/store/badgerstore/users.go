package badgerstore

import (
	"context"

	"github.com/dgraph-io/badger/v4"

	"github.com/huddlekit/huddle-server/internal/v1/store"
	"github.com/huddlekit/huddle-server/internal/v1/types"
)

type users struct {
	db *badger.DB
}

func (r *users) Get(_ context.Context, id types.UserID) (*store.UserProfile, error) {
	var profile *store.UserProfile
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		profile, err = getJSON[store.UserProfile](txn, userKey(id))
		return err
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return profile, nil
}

// Put writes a profile document. Profiles normally arrive from the identity
// provider out of band; this is exposed on the concrete type for seeding.
func (r *users) Put(_ context.Context, profile *store.UserProfile) error {
	return mapErr(r.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, userKey(profile.ID), profile)
	}))
}
