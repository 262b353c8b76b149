package testing

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/desertthunder/subx/internal/models"
)

// FakeSubsonic is an httptest server speaking enough of the Subsonic REST API for client tests.
//
// Requests are authenticated the way a real server does it: either u + t + s with t = md5(password + s),
// or an apiKey. Unauthenticated requests get Subsonic error 40.
type FakeSubsonic struct {
	*httptest.Server

	Username string
	Password string
	APIKey   string

	Albums    []models.Album
	Playlists []models.Playlist
	Artists   []models.Artist
	Songs     []models.Track

	// CoverImage, when set, is served by getCoverArt instead of the "JFIF <id>" placeholder.
	CoverImage []byte
	// CoverType overrides the image/jpeg Content-Type of getCoverArt responses.
	CoverType string

	mu       sync.Mutex
	requests []url.Values
	hits     map[string]int
	gate     chan struct{}
}

// NewFakeSubsonic starts a server accepting username/password. It is closed when the test ends.
func NewFakeSubsonic(t *testing.T, username, password string) *FakeSubsonic {
	t.Helper()

	f := &FakeSubsonic{
		Username: username,
		Password: password,
		hits:     make(map[string]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// Hold makes list endpoints block until [FakeSubsonic.Release] is called.
func (f *FakeSubsonic) Hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

// Release unblocks requests parked by [FakeSubsonic.Hold].
func (f *FakeSubsonic) Release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gate != nil {
		close(f.gate)
		f.gate = nil
	}
}

// Hits returns how many authenticated requests reached endpoint.
func (f *FakeSubsonic) Hits(endpoint string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[endpoint]
}

// Requests returns the query of every request received, authenticated or not.
func (f *FakeSubsonic) Requests() []url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]url.Values(nil), f.requests...)
}

// Authenticate reports whether q carries valid credentials.
func (f *FakeSubsonic) Authenticate(q url.Values) bool {
	if key := q.Get("apiKey"); key != "" {
		return f.APIKey != "" && key == f.APIKey && q.Get("u") == ""
	}
	if q.Get("u") != f.Username {
		return false
	}
	if p := q.Get("p"); p != "" {
		return p == f.Password
	}
	salt := q.Get("s")
	if salt == "" {
		return false
	}
	sum := md5.Sum([]byte(f.Password + salt))
	return strings.EqualFold(q.Get("t"), hex.EncodeToString(sum[:]))
}

func (f *FakeSubsonic) serve(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	endpoint := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/rest/"), ".view")

	f.mu.Lock()
	f.requests = append(f.requests, q)
	gate := f.gate
	f.mu.Unlock()

	if !f.Authenticate(q) {
		writeSubsonic(w, failed(40, "Wrong username or password"))
		return
	}

	f.mu.Lock()
	f.hits[endpoint]++
	f.mu.Unlock()

	if gate != nil && endpoint != "ping" {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	switch endpoint {
	case "ping":
		writeSubsonic(w, ok(nil))
	case "getAlbumList2":
		offset, _ := strconv.Atoi(q.Get("offset"))
		size, _ := strconv.Atoi(q.Get("size"))
		if size == 0 {
			size = 10
		}
		writeSubsonic(w, ok(map[string]any{"albumList2": map[string]any{"album": albumsJSON(window(f.Albums, offset, size))}}))
	case "getAlbum":
		for _, a := range f.Albums {
			if a.ID == q.Get("id") {
				var songs []models.Track
				for _, s := range f.Songs {
					if s.AlbumID == a.ID {
						songs = append(songs, s)
					}
				}
				body := albumsJSON([]models.Album{a})[0]
				body["song"] = songsJSON(songs)
				writeSubsonic(w, ok(map[string]any{"album": body}))
				return
			}
		}
		writeSubsonic(w, failed(70, "Album not found"))
	case "getPlaylists":
		lists := make([]map[string]any, 0, len(f.Playlists))
		for _, p := range f.Playlists {
			lists = append(lists, playlistJSON(p))
		}
		writeSubsonic(w, ok(map[string]any{"playlists": map[string]any{"playlist": lists}}))
	case "getPlaylist":
		for _, p := range f.Playlists {
			if p.ID == q.Get("id") {
				body := playlistJSON(p)
				body["entry"] = songsJSON(p.Tracks)
				writeSubsonic(w, ok(map[string]any{"playlist": body}))
				return
			}
		}
		writeSubsonic(w, failed(70, "Playlist not found"))
	case "getArtists":
		artists := make([]map[string]any, 0, len(f.Artists))
		for _, a := range f.Artists {
			artists = append(artists, artistJSON(a))
		}
		writeSubsonic(w, ok(map[string]any{"artists": map[string]any{
			"index": []map[string]any{{"name": "#", "artist": artists}},
		}}))
	case "getArtist":
		for _, a := range f.Artists {
			if a.ID == q.Get("id") {
				body := artistJSON(a)
				body["album"] = albumsJSON(a.Albums)
				writeSubsonic(w, ok(map[string]any{"artist": body}))
				return
			}
		}
		writeSubsonic(w, failed(70, "Artist not found"))
	case "search3":
		term := strings.ToLower(q.Get("query"))
		var albums []models.Album
		var songs []models.Track
		for _, a := range f.Albums {
			if strings.Contains(strings.ToLower(a.Name), term) {
				albums = append(albums, a)
			}
		}
		for _, s := range f.Songs {
			if strings.Contains(strings.ToLower(s.Title), term) {
				songs = append(songs, s)
			}
		}
		writeSubsonic(w, ok(map[string]any{"searchResult3": map[string]any{
			"album": albumsJSON(albums),
			"song":  songsJSON(songs),
		}}))
	case "stream":
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3 " + q.Get("id")))
	case "getCoverArt":
		if f.CoverType != "" {
			w.Header().Set("Content-Type", f.CoverType)
		} else {
			w.Header().Set("Content-Type", "image/jpeg")
		}
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Expires", "Thu, 01 Jan 1970 00:00:00 GMT")
		if f.CoverImage != nil {
			w.Write(f.CoverImage)
			return
		}
		w.Write([]byte("JFIF " + q.Get("id")))
	default:
		writeSubsonic(w, failed(0, "Unknown endpoint "+endpoint))
	}
}

func window[T any](items []T, offset, size int) []T {
	if offset >= len(items) {
		return nil
	}
	end := min(offset+size, len(items))
	return items[offset:end]
}

func ok(body map[string]any) map[string]any {
	if body == nil {
		body = map[string]any{}
	}
	body["status"] = "ok"
	body["version"] = "1.16.1"
	return body
}

func failed(code int, message string) map[string]any {
	return map[string]any{
		"status":  "failed",
		"version": "1.16.1",
		"error":   map[string]any{"code": code, "message": message},
	}
}

func writeSubsonic(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"subsonic-response": body})
}

func albumsJSON(albums []models.Album) []map[string]any {
	out := make([]map[string]any, 0, len(albums))
	for _, a := range albums {
		out = append(out, map[string]any{
			"id":        a.ID,
			"name":      a.Name,
			"artist":    a.Artist,
			"artistId":  a.ArtistID,
			"year":      a.Year,
			"songCount": a.SongCount,
			"duration":  a.Duration,
			"coverArt":  "al-" + a.ID,
		})
	}
	return out
}

func songsJSON(songs []models.Track) []map[string]any {
	out := make([]map[string]any, 0, len(songs))
	for _, s := range songs {
		out = append(out, map[string]any{
			"id":       s.ID,
			"title":    s.Title,
			"artist":   s.Artist,
			"album":    s.Album,
			"albumId":  s.AlbumID,
			"duration": s.Duration,
			"coverArt": "al-" + s.AlbumID,
		})
	}
	return out
}

func playlistJSON(p models.Playlist) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"name":      p.Name,
		"owner":     p.Owner,
		"comment":   p.Comment,
		"songCount": p.SongCount,
		"duration":  p.Duration,
		"public":    p.Public,
		"coverArt":  "pl-" + p.ID,
	}
}

func artistJSON(a models.Artist) map[string]any {
	return map[string]any{
		"id":         a.ID,
		"name":       a.Name,
		"albumCount": a.AlbumCount,
		"coverArt":   "ar-" + a.ID,
	}
}

// SampleAlbums builds n albums with ids "al1".."alN".
func SampleAlbums(n int) []models.Album {
	albums := make([]models.Album, 0, n)
	for i := 1; i <= n; i++ {
		id := "al" + strconv.Itoa(i)
		albums = append(albums, models.Album{ID: id, Name: "Album " + strconv.Itoa(i), Artist: "Artist", ArtistID: "ar1", Year: 2000 + i, SongCount: 10})
	}
	return albums
}

// SampleTracks builds n tracks with ids "t1".."tN".
func SampleTracks(n int) []models.Track {
	tracks := make([]models.Track, 0, n)
	for i := 1; i <= n; i++ {
		id := "t" + strconv.Itoa(i)
		tracks = append(tracks, models.Track{
			ID: id, Title: "Track " + strconv.Itoa(i), Artist: "Artist", Album: "Album", AlbumID: "al1",
			Duration: 180, StreamPath: models.StreamPathFor(id), ArtworkPath: models.ArtworkPathFor("al-al1", 0),
		})
	}
	return tracks
}
