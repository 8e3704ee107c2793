package state

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobarin/muvi/internal/models"
	"github.com/bobarin/muvi/internal/paths"
)

// recoverOrphanedRenders fills in render.image_url for shots whose expected
// render file exists on disk but is missing from state (a crash between the
// download and the save). Returns true when the document changed.
func (s *Store) recoverOrphanedRenders(st *models.State) bool {
	rendersDir, err := s.paths.RendersDir(st)
	if err != nil {
		return false
	}
	changed := false
	for i := range st.Storyboard.Shots {
		sh := &st.Storyboard.Shots[i]
		if sh.Render.ImageURL != "" {
			// Clear renders whose file vanished.
			if sh.Render.Status == models.RenderStatusDone && !s.renderResolves(st, sh.Render.ImageURL) {
				log.Printf("[State] Render file for %s is gone, clearing render", sh.ShotID)
				sh.Render = models.Render{Status: models.RenderStatusNone, Video: sh.Render.Video}
				changed = true
			}
			continue
		}
		for _, ext := range []string{".png", ".jpg", ".jpeg", ".webp"} {
			candidate := filepath.Join(rendersDir, RenderFileName(sh.ShotID)+ext)
			if fileExists(candidate) {
				sh.Render.Status = models.RenderStatusDone
				sh.Render.ImageURL = s.paths.ToURL(candidate)
				log.Printf("[State] Recovered orphaned render for %s: %s", sh.ShotID, sh.Render.ImageURL)
				changed = true
				break
			}
		}
	}
	return changed
}

// RenderFileName is the friendly on-disk name for a shot's render, shared
// with the orchestrator so recovery can find what a render wrote.
func RenderFileName(shotID string) string {
	return "shot_" + paths.SanitizeFilename(shotID, 80)
}

// migrateFalToLocal downloads any external URLs still referenced by the
// document into the project folder and rewrites them to local /files/ URLs,
// so a project survives expiry of the hosted results. Returns true when the
// document changed.
func (s *Store) migrateFalToLocal(ctx context.Context, st *models.State) bool {
	changed := false

	migrate := func(url, subdir, name string) string {
		if url == "" || !paths.IsExternalURL(url) {
			return url
		}
		dir, err := s.projectSubdir(st, subdir)
		if err != nil {
			return url
		}
		dest := filepath.Join(dir, name)
		if !fileExists(dest) {
			if err := s.downloader.Download(ctx, url, dest); err != nil {
				log.Printf("[State] Migration download failed for %s: %v", url, err)
				return url
			}
		}
		changed = true
		return s.paths.ToURL(dest)
	}

	for i := range st.Storyboard.Shots {
		sh := &st.Storyboard.Shots[i]
		sh.Render.ImageURL = migrate(sh.Render.ImageURL, "renders", RenderFileName(sh.ShotID)+guessExt(sh.Render.ImageURL, ".png"))
	}
	for castID, refs := range st.CastMatrix.CharacterRefs {
		refs.RefA = migrate(refs.RefA, "renders", fmt.Sprintf("cast_%s_ref_a%s", castID, guessExt(refs.RefA, ".png")))
		refs.RefB = migrate(refs.RefB, "renders", fmt.Sprintf("cast_%s_ref_b%s", castID, guessExt(refs.RefB, ".png")))
		st.CastMatrix.CharacterRefs[castID] = refs
	}
	for i := range st.CastMatrix.Scenes {
		sc := &st.CastMatrix.Scenes[i]
		for j, ref := range sc.DecorRefs {
			sc.DecorRefs[j] = migrate(ref, "renders", fmt.Sprintf("scene_%s_decor_%d%s", sc.SceneID, j, guessExt(ref, ".png")))
		}
		sc.DecorAlt = migrate(sc.DecorAlt, "renders", fmt.Sprintf("scene_%s_decor_alt%s", sc.SceneID, guessExt(sc.DecorAlt, ".png")))
		sc.WardrobeRef = migrate(sc.WardrobeRef, "renders", fmt.Sprintf("scene_%s_wardrobe%s", sc.SceneID, guessExt(sc.WardrobeRef, ".png")))
	}

	return changed
}

func (s *Store) projectSubdir(st *models.State, name string) (string, error) {
	switch name {
	case "renders":
		return s.paths.RendersDir(st)
	case "video":
		return s.paths.VideoDir(st)
	case "audio":
		return s.paths.AudioDir(st)
	default:
		folder, err := s.paths.ProjectFolder(st)
		if err != nil {
			return "", err
		}
		return folder, nil
	}
}

// guessExt picks a file extension from a URL path, falling back when absent.
func guessExt(url, fallback string) string {
	trimmed := url
	if idx := strings.IndexAny(trimmed, "?#"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	ext := filepath.Ext(trimmed)
	switch strings.ToLower(ext) {
	case ".png", ".jpg", ".jpeg", ".webp", ".mp4", ".mov":
		return ext
	}
	return fallback
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
