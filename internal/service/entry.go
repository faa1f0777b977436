package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/oriys/letletme/internal/cache"
	"github.com/oriys/letletme/internal/store"
)

// ErrEntriesUnavailable is returned when no entry database is configured.
var ErrEntriesUnavailable = errors.New("entry database not configured")

// ErrInvalidEntry is returned for non-positive entry ids.
var ErrInvalidEntry = errors.New("invalid entry id")

// EntryEndpoint is the cache field holding one entry's info.
func EntryEndpoint(id int) string { return "info:" + strconv.Itoa(id) }

// EntryService serves entry info from the database.
type EntryService struct {
	reader store.EntryReader
	info   func(context.Context, int) (*store.Entry, error)
}

// NewEntryService wires the entry read path through the cache. reader may
// be nil, in which case every call fails with ErrEntriesUnavailable.
func NewEntryService(reader store.EntryReader, st cache.Store, opts Options) *EntryService {
	s := &EntryService{reader: reader}
	s.info = cache.WrapKey(st, cache.Entry, EntryEndpoint, s.loadInfo, opts.wrapOptions()...)
	return s
}

// Info returns the entry with the given id.
func (s *EntryService) Info(ctx context.Context, id int) (*store.Entry, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidEntry, id)
	}
	if s.reader == nil {
		return nil, ErrEntriesUnavailable
	}
	return s.info(ctx, id)
}

func (s *EntryService) loadInfo(ctx context.Context, id int) (*store.Entry, error) {
	return s.reader.GetEntry(ctx, id)
}
