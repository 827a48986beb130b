package sfd

import (
	"bufio"
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/eak1mov/go-libsfd/sfd/spec"
	"github.com/eak1mov/go-libsfd/tile"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// DefaultMaxPending bounds the number of (data, strings) pairs a Builder
// keeps in flight.
const DefaultMaxPending = 4096

type buildState int

const (
	stateOtherParams buildState = iota
	stateGrid
	stateDone
)

type builderConfig struct {
	Logger     *slog.Logger
	TempDir    string
	Name       string
	Debug      bool
	Base       tile.Params
	Admit      func(tile.Buffer) bool
	MaxPending int
}

type BuilderOption func(*builderConfig)

func WithBuilderLogger(logger *slog.Logger) BuilderOption {
	return func(c *builderConfig) { c.Logger = logger }
}

// WithTempDir sets the directory for temporary files. Without it the
// builder uses $SFD_TEMP_PATH, then $TILE_MAP_CACHE_PATH, then os.TempDir().
func WithTempDir(dir string) BuilderOption {
	return func(c *builderConfig) { c.TempDir = dir }
}

func WithName(name string) BuilderOption {
	return func(c *builderConfig) { c.Name = name }
}

// WithDebugParams embeds each payload's address after the payload for verification on read.
func WithDebugParams(debug bool) BuilderOption {
	return func(c *builderConfig) { c.Debug = debug }
}

// WithParams sets server prefix, gzip flag and language of requested addresses.
func WithParams(serverPrefix uint32, gzip bool, lang tile.Language) BuilderOption {
	return func(c *builderConfig) {
		c.Base = tile.Params{ServerPrefix: serverPrefix, Gzip: gzip, Lang: lang}
	}
}

// WithAdmission sets a filter for delivered grid buffers. Rejected buffers
// are stored as missing.
func WithAdmission(admit func(tile.Buffer) bool) BuilderOption {
	return func(c *builderConfig) { c.Admit = admit }
}

func WithMaxPending(n int) BuilderOption {
	return func(c *builderConfig) { c.MaxPending = n }
}

// tempDir resolves and creates the directory for the builder's temporary files.
func tempDir(dir string) (string, error) {
	if dir == "" {
		dir = os.Getenv("SFD_TEMP_PATH")
	}
	if dir == "" {
		dir = os.Getenv("TILE_MAP_CACHE_PATH")
	}
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// holding is one in-flight (data, strings) pair.
type holding struct {
	cell      int
	data      spec.ParamBuffer
	strs      spec.ParamBuffer
	haveData  bool
	haveStrs  bool
	dataKey   string
	stringKey string
}

func (h *holding) complete() bool {
	return h.haveData && h.haveStrs
}

// Builder constructs an sfd file from buffers delivered in any order.
//
// The caller repeatedly asks NextParams for keys to fetch and hands the
// results to AddBuffers until Done reports true, then calls Result.
// A Builder is not safe for concurrent use.
type Builder struct {
	logger *slog.Logger
	id     uuid.UUID
	dir    string
	config builderConfig

	header *spec.Header
	coll   *spec.TileCollection

	state     buildState
	others    []string
	otherMaps map[string][]byte

	next    *spec.ParamIterator
	pending []*holding
	byKey   map[string]*holding

	writer   *spec.MultiBufferWriter
	curCell  int
	tmp      *os.File
	tmpW     *bufio.Writer
	tmpSize  uint32
	offsets  []uint32
	nbrPairs int
}

// NewBuilder returns a builder for a file indexing coll and holding the
// header maps of otherKeys.
func NewBuilder(coll *spec.TileCollection, otherKeys []string, opts ...BuilderOption) (*Builder, error) {
	config := builderConfig{
		Logger:     slog.New(slog.DiscardHandler),
		MaxPending: DefaultMaxPending,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.MaxPending < 1 {
		return nil, spec.Violationf("max pending %d", config.MaxPending)
	}

	dir, err := tempDir(config.TempDir)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	tmp, err := os.CreateTemp(dir, "sfd-"+id.String()+".*.multi")
	if err != nil {
		return nil, fmt.Errorf("CreateTemp failed (may need permissions for dir %q): %w", dir, err)
	}

	h := spec.NewHeader(config.Name, uint32(time.Now().Unix()), config.Debug)
	h.Collections = []spec.TileCollection{coll.Clone()}
	h.Collections[0].MakeCompactDetail()

	others := sortedOthers(otherKeys)

	b := &Builder{
		logger:    config.Logger.With("build", id.String()),
		id:        id,
		dir:       dir,
		config:    config,
		header:    h,
		coll:      &h.Collections[0],
		others:    others,
		otherMaps: make(map[string][]byte, len(others)),
		byKey:     make(map[string]*holding),
		writer:    spec.NewMultiBufferWriter(config.Debug),
		curCell:   -1,
		tmp:       tmp,
		tmpW:      bufio.NewWriter(tmp),
	}
	b.next = spec.NewParamIterator(b.coll, config.Base, false)
	b.offsets = make([]uint32, 0, b.coll.Cells())
	b.logger.Debug("libsfd: builder created", "cells", b.coll.Cells(), "others", len(others), "dir", dir)
	if len(others) == 0 {
		if err := b.enterGrid(); err != nil {
			b.Close()
			return nil, err
		}
	}
	return b, nil
}

// NewBuilderFromKeys splits keys into grid addresses, which form the index,
// and other keys, which become header maps.
func NewBuilderFromKeys(keys []string, opts ...BuilderOption) (*Builder, error) {
	coll, others := CollectionFromKeys(keys)
	return NewBuilder(coll, others, opts...)
}

// CollectionFromKeys builds a tile collection covering all grid keys and
// returns the remaining keys.
func CollectionFromKeys(keys []string) (*spec.TileCollection, []string) {
	coll := &spec.TileCollection{}
	var others []string
	for _, key := range keys {
		if tile.IsMapKey(key) {
			if p, err := tile.ParseParams(key); err == nil {
				coll.AddParams(p, nil)
				continue
			}
		}
		others = append(others, key)
	}
	coll.MakeCompactDetail()
	return coll, others
}

// ID identifies the build in log records and temporary file names.
func (b *Builder) ID() uuid.UUID {
	return b.id
}

func (b *Builder) enterGrid() error {
	b.state = stateGrid
	b.logger.Debug("libsfd: header maps complete", "others", len(b.others))
	return b.advanceDone()
}

// NextParams returns up to maxNbr keys to fetch next. Keys of pairs still
// incomplete are returned again before the window moves on.
func (b *Builder) NextParams(maxNbr int) []string {
	maxNbr = max(maxNbr, 2)
	var keys []string
	switch b.state {
	case stateOtherParams:
		for _, key := range b.others {
			if len(keys) == maxNbr {
				break
			}
			if _, resolved := b.otherMaps[key]; !resolved {
				keys = append(keys, key)
			}
		}
	case stateGrid:
		for _, h := range b.pending {
			if len(keys)+2 > maxNbr {
				break
			}
			if !h.complete() {
				keys = append(keys, h.dataKey, h.stringKey)
			}
		}
		if len(keys) > 0 {
			return keys
		}
		for len(keys)+2 <= maxNbr && len(b.pending) < b.config.MaxPending && !b.next.AtEnd() {
			h := b.enqueue()
			keys = append(keys, h.dataKey, h.stringKey)
		}
	}
	return keys
}

// enqueue takes the next pair off the iterator.
func (b *Builder) enqueue() *holding {
	h := &holding{}
	h.data.Params = b.next.Params()
	h.dataKey = b.next.Key()
	b.next.Next()
	h.strs.Params = b.next.Params()
	h.stringKey = b.next.Key()
	b.next.Next()

	cell, _ := b.coll.CellIndex(h.data.Params)
	h.cell = cell
	b.pending = append(b.pending, h)
	b.byKey[h.dataKey] = h
	b.byKey[h.stringKey] = h
	return h
}

// AddBuffers stores delivered buffers. Buffers for unknown keys are ignored.
func (b *Builder) AddBuffers(bufs []tile.Buffer) error {
	switch b.state {
	case stateOtherParams:
		return b.addOthers(bufs)
	case stateGrid:
		return b.addGrid(bufs)
	}
	if len(bufs) > 0 {
		b.logger.Debug("libsfd: buffers after completion", "count", len(bufs))
	}
	return nil
}

func (b *Builder) addOthers(bufs []tile.Buffer) error {
	for _, buf := range bufs {
		if _, found := slices.BinarySearch(b.others, buf.Key); !found {
			b.logger.Debug("libsfd: unexpected header key", "key", buf.Key)
			continue
		}
		if data, resolved := b.otherMaps[buf.Key]; resolved && data != nil {
			continue
		}
		// nil marks a key the source knows to be empty; Result leaves it out.
		b.otherMaps[buf.Key] = buf.Data
	}
	if len(b.otherMaps) == len(b.others) {
		return b.enterGrid()
	}
	return nil
}

func (b *Builder) addGrid(bufs []tile.Buffer) error {
	nbrData, nbrStrs := 0, 0
	for _, buf := range bufs {
		switch kind, _ := tile.KeyKind(buf.Key); kind {
		case tile.KindData:
			nbrData++
		case tile.KindStrings:
			nbrStrs++
		}
	}
	if nbrData != nbrStrs {
		return spec.Violationf("batch has %d data and %d strings buffers", nbrData, nbrStrs)
	}

	for _, buf := range bufs {
		h, ok := b.byKey[buf.Key]
		if !ok {
			b.logger.Debug("libsfd: unexpected grid key", "key", buf.Key)
			continue
		}
		data := buf.Data
		if data != nil && b.config.Admit != nil && !b.config.Admit(buf) {
			data = nil
		}
		if buf.Key == h.dataKey {
			h.data.Data, h.haveData = data, true
		} else {
			h.strs.Data, h.haveStrs = data, true
		}
	}
	return b.drain()
}

// drain writes completed pairs from the head of the queue.
func (b *Builder) drain() error {
	n := 0
	for n < len(b.pending) && b.pending[n].complete() {
		h := b.pending[n]
		if h.cell != b.curCell {
			if err := b.flush(); err != nil {
				return err
			}
			b.curCell = h.cell
		}
		if err := b.writer.WritePair(h.data, h.strs); err != nil {
			return err
		}
		delete(b.byKey, h.dataKey)
		delete(b.byKey, h.stringKey)
		b.nbrPairs++
		n++
	}
	b.pending = slices.Delete(b.pending, 0, n)
	return b.advanceDone()
}

func (b *Builder) advanceDone() error {
	if b.state != stateGrid || len(b.pending) > 0 || !b.next.AtEnd() {
		return nil
	}
	if err := b.flush(); err != nil {
		return err
	}
	b.state = stateDone
	b.logger.Debug("libsfd: grid complete", "pairs", b.nbrPairs, "cells", len(b.offsets), "bytes", b.tmpSize)
	return nil
}

// flush writes the block of the current cell to the multi-buffer file.
func (b *Builder) flush() error {
	if b.curCell < 0 {
		return nil
	}
	if b.curCell != len(b.offsets) {
		return spec.Violationf("cell %d flushed after %d cells", b.curCell, len(b.offsets))
	}
	block := b.writer.Bytes()
	b.offsets = append(b.offsets, b.tmpSize)
	if _, err := b.tmpW.Write(block); err != nil {
		return err
	}
	b.tmpSize += uint32(len(block))
	b.curCell = -1
	return nil
}

// Done reports whether every buffer has been delivered and written.
func (b *Builder) Done() bool {
	return b.state == stateDone
}

// Pending returns the number of pairs in flight.
func (b *Builder) Pending() int {
	return len(b.pending)
}

// Result assembles the file. It may only be called once Done reports true.
func (b *Builder) Result() (res *Result, err error) {
	if !b.Done() {
		return nil, spec.Violationf("result requested before the build is done")
	}
	if len(b.offsets) != b.coll.Cells() {
		return nil, spec.Violationf("%d of %d cells written", len(b.offsets), b.coll.Cells())
	}
	if err := b.tmpW.Flush(); err != nil {
		return nil, err
	}

	h := b.header
	var strs []string
	var mapSizes []int
	var maps [][]byte
	for _, key := range b.others {
		data := b.otherMaps[key]
		if data == nil {
			b.logger.Debug("libsfd: empty header map dropped", "key", key)
			continue
		}
		h.UpdateMetaData(key)
		strs = append(strs, key)
		maps = append(maps, data)
		mapSizes = append(mapSizes, len(data))
	}
	if err := h.ComputeSizes(strs, mapSizes); err != nil {
		return nil, err
	}
	b.coll.UpdateOffset(h.MultiBufferOffsetStart)
	h.FileSize = h.MultiBufferStart + b.tmpSize

	buf, err := h.Save()
	if err != nil {
		return nil, err
	}
	buf, err = spec.AppendHeaderStrings(buf, h, strs, maps)
	if err != nil {
		return nil, err
	}
	for _, off := range b.offsets {
		buf = binary.BigEndian.AppendUint32(buf, h.MultiBufferStart+off)
	}
	buf = binary.BigEndian.AppendUint32(buf, h.FileSize)

	multi, err := mmapTemp(b.tmp, int(b.tmpSize))
	if err != nil {
		return nil, err
	}
	defer func() {
		if multi != nil {
			err = errors.Join(err, unix.Munmap(multi))
		}
	}()

	out, err := os.CreateTemp(b.dir, "sfd-"+b.id.String()+".*.sfd")
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			out.Close()
			os.Remove(out.Name())
		}
	}()
	w := bufio.NewWriter(out)
	if _, err = w.Write(buf); err != nil {
		return nil, err
	}
	if _, err = w.Write(multi); err != nil {
		return nil, err
	}
	if err = w.Flush(); err != nil {
		return nil, err
	}

	data, err := mmapTemp(out, int(h.FileSize))
	if err != nil {
		return nil, err
	}
	if err = out.Close(); err != nil {
		unix.Munmap(data)
		return nil, err
	}
	b.logger.Debug("libsfd: result", "path", out.Name(), "bytes", h.FileSize)
	if err := b.Close(); err != nil {
		b.logger.Warn("libsfd: removing temporary file", "error", err)
	}
	return &Result{path: out.Name(), data: data}, nil
}

func mmapTemp(f *os.File, size int) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", f.Name(), err)
	}
	return data, nil
}

// Close removes the multi-buffer temporary file. Files already returned by
// Result are left alone.
func (b *Builder) Close() error {
	if b.tmp == nil {
		return nil
	}
	name := b.tmp.Name()
	err := b.tmp.Close()
	b.tmp = nil
	return errors.Join(err, os.Remove(name))
}

// Result is a finished sfd file, mapped read-only from a temporary file.
type Result struct {
	path string
	data []byte
}

func (r *Result) Bytes() []byte {
	return r.data
}

// Path is the temporary file holding the result. The caller owns it.
func (r *Result) Path() string {
	return r.path
}

// Close unmaps the result. The file at Path stays.
func (r *Result) Close() error {
	data := r.data
	r.data = nil
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}

// sortedOthers orders header keys the way lookups expect them.
func sortedOthers(keys []string) []string {
	out := slices.Clone(keys)
	slices.SortFunc(out, cmp.Compare[string])
	return slices.Compact(out)
}
