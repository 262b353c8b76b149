// package formatter renders library data as tables, JSON or CSV and writes playlist exports to disk
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/shared"
)

// Format selects how listings are written.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatCSV   Format = "csv"
)

// ParseFormat validates a --format flag value. Empty selects [FormatTable].
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatTable, nil
	case FormatTable, FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown format %q (want table, json or csv)", shared.ErrInvalidArgument, s)
	}
}

// FormatDuration renders seconds as m:ss, or h:mm:ss past an hour.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds) * time.Second
	h, m, s := int(d.Hours()), int(d.Minutes())%60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// MarshalJSON encodes v, indented when pretty is set.
func MarshalJSON(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}

// ServerView is the printable form of a server profile. The secret is never included.
type ServerView struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
	Kind     string `json:"credential_kind"`
	Active   bool   `json:"active"`
}

// ServerViews converts profiles for output.
func ServerViews(servers []*models.ServerProfile) []ServerView {
	views := make([]ServerView, 0, len(servers))
	for _, s := range servers {
		views = append(views, ServerView{
			ID:       s.ID(),
			Label:    s.Label(),
			BaseURL:  s.BaseURL(),
			Username: s.Username(),
			Kind:     string(s.CredentialKind()),
			Active:   s.Active(),
		})
	}
	return views
}

// WriteTracks writes tracks in format f.
func WriteTracks(w io.Writer, f Format, tracks []models.Track) error {
	headers := []string{"#", "ID", "Title", "Artist", "Album", "Duration"}
	rows := make([][]string, 0, len(tracks))
	for i, t := range tracks {
		rows = append(rows, []string{strconv.Itoa(i + 1), t.ID, t.Title, t.Artist, t.Album, FormatDuration(t.Duration)})
	}
	return write(w, f, tracks, headers, rows)
}

// WriteAlbums writes albums in format f.
func WriteAlbums(w io.Writer, f Format, albums []models.Album) error {
	headers := []string{"ID", "Name", "Artist", "Year", "Songs", "Duration"}
	rows := make([][]string, 0, len(albums))
	for _, a := range albums {
		rows = append(rows, []string{a.ID, a.Name, a.Artist, yearString(a.Year), strconv.Itoa(a.SongCount), FormatDuration(a.Duration)})
	}
	return write(w, f, albums, headers, rows)
}

// WritePlaylists writes playlist summaries in format f.
func WritePlaylists(w io.Writer, f Format, playlists []models.Playlist) error {
	headers := []string{"ID", "Name", "Owner", "Songs", "Duration", "Visibility"}
	rows := make([][]string, 0, len(playlists))
	for _, p := range playlists {
		rows = append(rows, []string{p.ID, p.Name, p.Owner, strconv.Itoa(p.SongCount), FormatDuration(p.Duration), visibility(p.Public)})
	}
	return write(w, f, playlists, headers, rows)
}

// WriteArtists writes artists in format f.
func WriteArtists(w io.Writer, f Format, artists []models.Artist) error {
	headers := []string{"ID", "Name", "Albums"}
	rows := make([][]string, 0, len(artists))
	for _, a := range artists {
		rows = append(rows, []string{a.ID, a.Name, strconv.Itoa(a.AlbumCount)})
	}
	return write(w, f, artists, headers, rows)
}

// WriteServers writes server profiles in format f, marking the active one.
func WriteServers(w io.Writer, f Format, servers []*models.ServerProfile) error {
	views := ServerViews(servers)
	headers := []string{"", "ID", "Label", "URL", "User", "Auth"}
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		marker := ""
		if v.Active {
			marker = "*"
		}
		rows = append(rows, []string{marker, v.ID, v.Label, v.BaseURL, v.Username, v.Kind})
	}
	return write(w, f, views, headers, rows)
}

func write(w io.Writer, f Format, data any, headers []string, rows [][]string) error {
	switch f {
	case FormatJSON:
		out, err := MarshalJSON(data, true)
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(out))
		return err
	case FormatCSV:
		return writeCSV(w, headers, rows)
	default:
		_, err := fmt.Fprintln(w, renderTable(headers, rows))
		return err
	}
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

func writeCSV(w io.Writer, headers []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV records: %w", err)
	}
	return nil
}

func yearString(y int) string {
	if y == 0 {
		return ""
	}
	return strconv.Itoa(y)
}

func visibility(public bool) string {
	if public {
		return "Public"
	}
	return "Private"
}

// ExportToCSV converts a playlist's tracks to CSV with columns ID, Title, Artist, Album, Duration
func ExportToCSV(pl *models.Playlist) ([]byte, error) {
	var buf bytes.Buffer
	rows := make([][]string, 0, len(pl.Tracks))
	for _, t := range pl.Tracks {
		rows = append(rows, []string{t.ID, t.Title, t.Artist, t.Album, strconv.Itoa(t.Duration)})
	}
	if err := writeCSV(&buf, []string{"ID", "Title", "Artist", "Album", "Duration"}, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportToMarkdown converts a playlist to Markdown with an optional cover image
func ExportToMarkdown(pl *models.Playlist, imageFilename string) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", pl.Name)
	if imageFilename != "" {
		fmt.Fprintf(&buf, "![Cover](%s)\n\n", imageFilename)
	}
	if pl.Comment != "" {
		fmt.Fprintf(&buf, "**Comment**: %s\n\n", pl.Comment)
	}
	if pl.Owner != "" {
		fmt.Fprintf(&buf, "**Owner**: %s\n", pl.Owner)
	}
	fmt.Fprintf(&buf, "**Tracks**: %d\n", len(pl.Tracks))
	fmt.Fprintf(&buf, "**Visibility**: %s\n\n", visibility(pl.Public))

	buf.WriteString("## Tracks\n\n")
	for i, t := range pl.Tracks {
		album := ""
		if t.Album != "" {
			album = fmt.Sprintf(" (%s)", t.Album)
		}
		fmt.Fprintf(&buf, "%d. %s - %s%s [%s]\n", i+1, t.Artist, t.Title, album, FormatDuration(t.Duration))
	}

	return buf.Bytes(), nil
}

// ExportToText converts a playlist to plain text
func ExportToText(pl *models.Playlist) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "Playlist: %s\n", pl.Name)
	if pl.Comment != "" {
		fmt.Fprintf(&buf, "Comment: %s\n", pl.Comment)
	}
	fmt.Fprintf(&buf, "Tracks: %d\n\n", len(pl.Tracks))
	for i, t := range pl.Tracks {
		fmt.Fprintf(&buf, "%d. %s - %s\n", i+1, t.Artist, t.Title)
	}

	return buf.Bytes(), nil
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	TracksFile   string
	MetadataFile string
}

// WriteCSVExport writes {base}_tracks.csv and {base}_metadata.json. base defaults to the playlist ID.
func WriteCSVExport(pl *models.Playlist, base string) (*CSVExportResult, error) {
	if base == "" {
		base = pl.ID
	}

	data, err := ExportToCSV(pl)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}
	tracksFile := base + "_tracks.csv"
	if err := os.WriteFile(tracksFile, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	meta := *pl
	meta.Tracks = nil
	metaJSON, err := MarshalJSON(meta, true)
	if err != nil {
		return nil, fmt.Errorf("failed to generate metadata JSON: %w", err)
	}
	metadataFile := base + "_metadata.json"
	if err := os.WriteFile(metadataFile, metaJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write metadata file: %w", err)
	}

	return &CSVExportResult{TracksFile: tracksFile, MetadataFile: metadataFile}, nil
}

// MarkdownExportResult contains information about files created by WriteMarkdownExport
type MarkdownExportResult struct {
	Directory  string
	Files      []string
	CoverImage string
}

// WriteMarkdownExport writes {dir}/README.md and, when cover is non-empty, {dir}/cover.jpg.
func WriteMarkdownExport(pl *models.Playlist, dir string, cover []byte) (*MarkdownExportResult, error) {
	if dir == "" {
		dir = pl.ID
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	result := &MarkdownExportResult{Directory: dir, Files: []string{}}

	var coverName string
	if len(cover) > 0 {
		coverPath := filepath.Join(dir, "cover.jpg")
		if err := os.WriteFile(coverPath, cover, 0644); err != nil {
			return nil, fmt.Errorf("failed to save cover image: %w", err)
		}
		coverName = "cover.jpg"
		result.CoverImage = coverPath
		result.Files = append(result.Files, coverPath)
	}

	md, err := ExportToMarkdown(pl, coverName)
	if err != nil {
		return nil, fmt.Errorf("failed to generate Markdown: %w", err)
	}
	mdFile := filepath.Join(dir, "README.md")
	if err := os.WriteFile(mdFile, md, 0644); err != nil {
		return nil, fmt.Errorf("failed to write Markdown file: %w", err)
	}
	result.Files = append(result.Files, mdFile)

	return result, nil
}

// WriteTextExport writes a plain text export, defaulting to {playlist.ID}_tracks.txt.
func WriteTextExport(pl *models.Playlist, path string) (string, error) {
	if path == "" {
		path = fmt.Sprintf("%s_tracks.txt", pl.ID)
	}

	data, err := ExportToText(pl)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}
	return path, nil
}

// ExportManifest summarizes a bulk playlist export.
type ExportManifest struct {
	Server     string             `json:"server"`
	Format     string             `json:"format"`
	ExportedAt time.Time          `json:"exported_at"`
	Total      int                `json:"total"`
	Successful int                `json:"successful"`
	Failed     int                `json:"failed"`
	Playlists  []ManifestPlaylist `json:"playlists"`
}

// ManifestPlaylist is one playlist entry of an [ExportManifest].
type ManifestPlaylist struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Files []string `json:"files,omitempty"`
	Error string   `json:"error,omitempty"`
}

// WriteManifest writes m as indented JSON to path.
func WriteManifest(m *ExportManifest, path string) error {
	data, err := MarshalJSON(m, true)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}
