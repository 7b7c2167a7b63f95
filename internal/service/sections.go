// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"tasknest/internal/blob"
	"tasknest/internal/cache"
	"tasknest/internal/docstore"
	"tasknest/internal/models"
	"tasknest/internal/reconcile"
	"tasknest/internal/slug"
)

// SectionInput is the editable part of a legacy document section.
type SectionInput struct {
	Name string      `json:"name"`
	Icon models.Icon `json:"icon"`
}

func (in *SectionInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	if in.Icon == "" {
		in.Icon = models.IconFileText
	}
}

func (in SectionInput) validate() error {
	return invalid(validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.RuneLength(1, 100)),
		validation.Field(&in.Icon, validation.In(iconValues(models.SectionIcons)...)),
	))
}

// Upload is one file handed to UploadFiles.
type Upload struct {
	Name string
	Type string
	Size int64
	Body io.Reader
}

// UploadResult reports a multi-file upload as counts plus the messages of
// the files that failed.
type UploadResult struct {
	Uploaded int         `json:"uploaded"`
	Failed   int         `json:"failed"`
	Errors   []string    `json:"errors"`
	Files    []FileEntry `json:"files"`
}

// FileEntry is an uploaded file as listed to clients.
type FileEntry struct {
	FileName     string `json:"fileName"`
	DownloadURL  string `json:"downloadUrl"`
	Size         int64  `json:"size"`
	Type         string `json:"type"`
	UploadedAt   string `json:"uploadedAt"`
	OriginalName string `json:"originalName"`
	Year         int    `json:"year"`
}

// FileListing is every file of a section, newest year first.
type FileListing struct {
	Files []FileEntry `json:"files"`
	Years []int       `json:"years"`
}

func fileEntry(f models.SectionFile) FileEntry {
	return FileEntry{
		FileName:     f.FileName,
		DownloadURL:  f.FileContent,
		Size:         f.Size,
		Type:         f.Type,
		UploadedAt:   f.UploadedAt,
		OriginalName: f.OriginalName,
		Year:         f.Year,
	}
}

// uploadedAt parses an upload timestamp; unparsable values sort oldest.
func uploadedAt(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SectionService manages the legacy document sections: a named section
// with one free-form form and uploaded files partitioned by year.
type SectionService struct {
	store     docstore.Store
	snapshots *cache.SnapshotCache
	hub       *reconcile.Hub[models.Section]
	limit     int64

	Now Clock
}

// NewSectionService creates the service and its subscription hub. Uploads
// over limit bytes are rejected.
func NewSectionService(store docstore.Store, snapshots *cache.SnapshotCache, limit int64) *SectionService {
	return &SectionService{
		store:     store,
		snapshots: snapshots,
		hub: reconcile.NewHub("sections", models.DefaultSections(),
			streamSource(store, CollSections, markCustomSections)),
		limit: limit,
		Now:   time.Now,
	}
}

func markCustomSections(items []models.Section) {
	for i := range items {
		items[i].IsDefault = false
	}
}

func isDefaultSection(id string) bool {
	for _, s := range models.DefaultSections() {
		if s.ID == id {
			return true
		}
	}
	return false
}

func filesPath(sectionID string, year int) string {
	return docstore.Path(CollSections, sectionID, "years", strconv.Itoa(year), "files")
}

// List returns the default sections followed by the user's own.
func (s *SectionService) List(ctx context.Context, userID string) ([]models.Section, error) {
	return cachedList(ctx, s.snapshots, userID, kindSections, func() ([]models.Section, error) {
		return s.list(ctx, userID)
	})
}

func (s *SectionService) list(ctx context.Context, userID string) ([]models.Section, error) {
	docs, err := s.store.List(ctx, userID, CollSections)
	if err != nil {
		return nil, err
	}
	custom := decodeAll[models.Section](CollSections, docs)
	markCustomSections(custom)
	return reconcile.Reconcile(models.DefaultSections(), custom), nil
}

// Get returns one section from the merged list.
func (s *SectionService) Get(ctx context.Context, userID, id string) (*models.Section, error) {
	all, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, sec := range all {
		if sec.ID == id {
			return &sec, nil
		}
	}
	return nil, fmt.Errorf("section %s: %w", id, models.ErrNotFound)
}

// Create adds a custom section with a collision-free slug id.
func (s *SectionService) Create(ctx context.Context, userID string, in SectionInput) (*models.Section, error) {
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	base := slug.Generate(in.Name)
	if base == "" {
		return nil, models.Invalid("name: must contain a letter or digit.")
	}

	for attempt := 0; attempt < 3; attempt++ {
		all, err := s.list(ctx, userID)
		if err != nil {
			return nil, err
		}
		taken := make(map[string]bool, len(all))
		for _, sec := range all {
			taken[sec.ID] = true
		}

		sec := models.Section{ID: slug.Unique(base, func(id string) bool { return taken[id] }), Name: in.Name, Icon: in.Icon}
		_, err = s.store.Create(ctx, userID, CollSections, sec.ID, sec)
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.snapshots.Invalidate(ctx, userID, kindSections)
		return &sec, nil
	}
	return nil, fmt.Errorf("create section %q: %w", in.Name, models.ErrConflict)
}

// Update renames a custom section or changes its icon.
func (s *SectionService) Update(ctx context.Context, userID, id string, in SectionInput) (*models.Section, error) {
	if isDefaultSection(id) {
		return nil, models.Invalid("default sections cannot be changed")
	}
	in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, userID, CollSections, id, map[string]any{"name": in.Name, "icon": in.Icon}); err != nil {
		return nil, err
	}
	s.snapshots.Invalidate(ctx, userID, kindSections)
	return &models.Section{ID: id, Name: in.Name, Icon: in.Icon}, nil
}

// Delete removes a custom section together with its form and files.
func (s *SectionService) Delete(ctx context.Context, userID, id string) error {
	if isDefaultSection(id) {
		return models.Invalid("default sections cannot be deleted")
	}
	existing, err := s.store.Get(ctx, userID, CollSections, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("section %s: %w", id, models.ErrNotFound)
	}
	if err := s.store.DeleteTree(ctx, userID, CollSections, id); err != nil {
		return err
	}
	s.snapshots.Invalidate(ctx, userID, kindSections)
	return nil
}

// Form returns the section's saved form; an unsaved form is empty.
func (s *SectionService) Form(ctx context.Context, userID, id string) (*models.SectionForm, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	d, err := s.store.Get(ctx, userID, CollSections, id)
	if err != nil {
		return nil, err
	}
	form := &models.SectionForm{}
	if d == nil {
		return form, nil
	}
	if err := d.Decode(form); err != nil {
		return nil, fmt.Errorf("decode form %s: %w", id, err)
	}
	return form, nil
}

// SaveForm merges the form into the section's document.
func (s *SectionService) SaveForm(ctx context.Context, userID, id string, form models.SectionForm) error {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return err
	}
	err := validation.ValidateStruct(&form,
		validation.Field(&form.IssuedDate, dateRule),
		validation.Field(&form.ExpiryDate, dateRule),
		validation.Field(&form.Notes, validation.RuneLength(0, 10000)),
	)
	if err != nil {
		return invalid(err)
	}
	return s.store.Set(ctx, userID, CollSections, id, form, true)
}

// UploadFiles stores files under the section for a year. Each file
// succeeds or fails on its own; the result counts both.
func (s *SectionService) UploadFiles(ctx context.Context, userID, id string, year int, files []Upload) (*UploadResult, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	if year <= 0 {
		year = s.Now().Year()
	}

	res := &UploadResult{Errors: []string{}, Files: []FileEntry{}}
	for _, u := range files {
		entry, err := s.upload(ctx, userID, id, year, u)
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", u.Name, err))
			continue
		}
		res.Uploaded++
		res.Files = append(res.Files, entry)
	}
	return res, nil
}

func (s *SectionService) upload(ctx context.Context, userID, id string, year int, u Upload) (FileEntry, error) {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(strings.TrimSpace(u.Name))
	if name == "" {
		return FileEntry{}, models.Invalid("file name is required")
	}
	if u.Size > s.limit {
		return FileEntry{}, fmt.Errorf("%w: limit is %d bytes", blob.ErrTooLarge, s.limit)
	}

	content, err := blob.EncodeDataURL(u.Body, u.Type, s.limit)
	if err != nil {
		return FileEntry{}, err
	}

	now := s.Now()
	f := models.SectionFile{
		FileName:     uploadName(now, name),
		FileContent:  content,
		Size:         u.Size,
		Type:         u.Type,
		UploadedAt:   now.UTC().Format(time.RFC3339Nano),
		OriginalName: u.Name,
		Year:         year,
	}
	if err := s.store.Set(ctx, userID, filesPath(id, year), f.FileName, f, false); err != nil {
		return FileEntry{}, err
	}
	return fileEntry(f), nil
}

// uploadName stamps a stored file name with the upload time and a random
// tag, so files sharing a name and a millisecond do not replace each other.
func uploadName(now time.Time, name string) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "_" + uuid.NewString()[:8] + "_" + name
}

// ListFilesByYear returns one year's files, newest first.
func (s *SectionService) ListFilesByYear(ctx context.Context, userID, id string, year int) ([]FileEntry, error) {
	docs, err := s.store.List(ctx, userID, filesPath(id, year))
	if err != nil {
		return nil, err
	}
	files := make([]FileEntry, 0, len(docs))
	for _, f := range decodeAll[models.SectionFile](filesPath(id, year), docs) {
		files = append(files, fileEntry(f))
	}
	sort.SliceStable(files, func(i, j int) bool {
		return uploadedAt(files[i].UploadedAt).After(uploadedAt(files[j].UploadedAt))
	})
	return files, nil
}

// ListFiles returns every file of the section ordered by year, then upload
// time, both descending, along with the years that hold files.
func (s *SectionService) ListFiles(ctx context.Context, userID, id string) (*FileListing, error) {
	prefix := docstore.Path(CollSections, id, "years") + "/"
	paths, err := s.store.ListCollections(ctx, userID, prefix)
	if err != nil {
		return nil, err
	}

	listing := &FileListing{Files: []FileEntry{}, Years: []int{}}
	for _, p := range paths {
		yearPart, rest, _ := strings.Cut(strings.TrimPrefix(p, prefix), "/")
		year, err := strconv.Atoi(yearPart)
		if err != nil || rest != "files" {
			continue
		}
		files, err := s.ListFilesByYear(ctx, userID, id, year)
		if err != nil {
			return nil, err
		}
		listing.Years = append(listing.Years, year)
		listing.Files = append(listing.Files, files...)
	}

	sort.Sort(sort.Reverse(sort.IntSlice(listing.Years)))
	sort.SliceStable(listing.Files, func(i, j int) bool {
		a, b := listing.Files[i], listing.Files[j]
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		return uploadedAt(a.UploadedAt).After(uploadedAt(b.UploadedAt))
	})
	return listing, nil
}

// DeleteFile removes one uploaded file.
func (s *SectionService) DeleteFile(ctx context.Context, userID, id string, year int, fileName string) error {
	existing, err := s.store.Get(ctx, userID, filesPath(id, year), fileName)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("file %s: %w", fileName, models.ErrNotFound)
	}
	return s.store.Delete(ctx, userID, filesPath(id, year), fileName)
}

// Subscribe returns a live handle on the merged sections.
func (s *SectionService) Subscribe(userID string) *reconcile.Handle[models.Section] {
	return s.hub.Acquire(userID)
}
