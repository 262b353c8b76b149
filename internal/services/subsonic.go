package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subx/internal/auth"
	"github.com/desertthunder/subx/internal/models"
	"github.com/desertthunder/subx/internal/shared"
	"golang.org/x/time/rate"
)

// ArtworkSize is the cover art edge length requested for list thumbnails.
const ArtworkSize = 300

// Subsonic error codes with a dedicated sentinel.
const (
	codeWrongCredentials = 40
	codeTokenUnsupported = 41
	codeNotAuthorized    = 50
	codeNotFound         = 70
)

// SubsonicClient talks to one server profile. It never follows registry changes: a new profile gets a new
// client from the [Provider].
type SubsonicClient struct {
	profile    *models.ServerProfile
	signer     *auth.Signer
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *log.Logger
}

// NewSubsonicClient binds a client to a copy of profile. A nil limiter means unlimited.
func NewSubsonicClient(profile *models.ServerProfile, signer *auth.Signer, httpClient *http.Client, limiter *rate.Limiter, logger *log.Logger) *SubsonicClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if logger == nil {
		logger = shared.NopLogger()
	}
	return &SubsonicClient{
		profile:    profile.Clone(),
		signer:     signer,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     shared.WithLogger(logger, "server", profile.DisplayName()),
	}
}

// Profile returns a copy of the profile this client was built for.
func (c *SubsonicClient) Profile() *models.ServerProfile {
	return c.profile.Clone()
}

// ServerID returns the id of the bound profile.
func (c *SubsonicClient) ServerID() string {
	return c.profile.ID()
}

// Sign signs a resource path such as "stream?id=1" for the bound profile.
func (c *SubsonicClient) Sign(path string) (*auth.SignedRequest, error) {
	return c.signer.Sign(c.profile, path)
}

// SignURL re-signs an absolute or relative URL for the bound profile.
func (c *SubsonicClient) SignURL(rawURL string) (*auth.SignedRequest, error) {
	return c.signer.SignURL(c.profile, rawURL)
}

// ResourceURL returns the unsigned absolute URL of a resource path, for use with a signing [Transport].
func (c *SubsonicClient) ResourceURL(path string) string {
	return c.profile.BaseURL() + "/rest/" + path
}

// StreamURL signs the track's stream path.
func (c *SubsonicClient) StreamURL(track models.Track) (*auth.SignedRequest, error) {
	p := track.StreamPath
	if p == "" {
		p = models.StreamPathFor(track.ID)
	}
	return c.Sign(p)
}

// subsonicEnvelope is the JSON wrapper around every Subsonic response.
type subsonicEnvelope struct {
	Response subsonicResponse `json:"subsonic-response"`
}

type subsonicResponse struct {
	Status        string             `json:"status"`
	Version       string             `json:"version"`
	Error         *subsonicError     `json:"error,omitempty"`
	AlbumList2    *subsonicAlbumList `json:"albumList2,omitempty"`
	Album         *subsonicAlbum     `json:"album,omitempty"`
	Playlists     *subsonicPlaylists `json:"playlists,omitempty"`
	Playlist      *subsonicPlaylist  `json:"playlist,omitempty"`
	Artists       *subsonicArtists   `json:"artists,omitempty"`
	Artist        *subsonicArtist    `json:"artist,omitempty"`
	SearchResult3 *subsonicSearch    `json:"searchResult3,omitempty"`
}

type subsonicError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type subsonicAlbumList struct {
	Album []subsonicAlbum `json:"album"`
}

type subsonicAlbum struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Artist    string         `json:"artist"`
	ArtistID  string         `json:"artistId"`
	Year      int            `json:"year"`
	SongCount int            `json:"songCount"`
	Duration  int            `json:"duration"`
	CoverArt  string         `json:"coverArt"`
	Song      []subsonicSong `json:"song,omitempty"`
}

type subsonicSong struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	Album    string `json:"album"`
	AlbumID  string `json:"albumId"`
	Duration int    `json:"duration"`
	CoverArt string `json:"coverArt"`
}

type subsonicPlaylists struct {
	Playlist []subsonicPlaylist `json:"playlist"`
}

type subsonicPlaylist struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Owner     string         `json:"owner"`
	Comment   string         `json:"comment"`
	SongCount int            `json:"songCount"`
	Duration  int            `json:"duration"`
	Public    bool           `json:"public"`
	CoverArt  string         `json:"coverArt"`
	Entry     []subsonicSong `json:"entry,omitempty"`
}

type subsonicArtists struct {
	Index []struct {
		Name   string           `json:"name"`
		Artist []subsonicArtist `json:"artist"`
	} `json:"index"`
}

type subsonicArtist struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	AlbumCount int             `json:"albumCount"`
	CoverArt   string          `json:"coverArt"`
	Album      []subsonicAlbum `json:"album,omitempty"`
}

type subsonicSearch struct {
	Artist []subsonicArtist `json:"artist"`
	Album  []subsonicAlbum  `json:"album"`
	Song   []subsonicSong   `json:"song"`
}

// doRequest signs endpoint with params, waits for the limiter and decodes the Subsonic envelope.
//
// Transport failures wrap [shared.ErrNetwork]; Subsonic error payloads map to [shared.ErrAuthFailed],
// [shared.ErrNotFound] or [shared.ErrAPIRequest].
func (c *SubsonicClient) doRequest(ctx context.Context, endpoint string, params url.Values) (*subsonicResponse, error) {
	resource := endpoint
	if len(params) > 0 {
		resource += "?" + params.Encode()
	}
	signed, err := c.Sign(resource)
	if err != nil {
		return nil, err
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %w", shared.ErrNetwork, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("subsonic request", "endpoint", endpoint)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", shared.ErrNetwork, endpoint, unwrapURLError(err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %s returned status %d", shared.ErrAuthFailed, endpoint, resp.StatusCode)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %w: %s returned status %d", shared.ErrNetwork, shared.ErrServiceDown, endpoint, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w: %s returned status %d", shared.ErrAPIRequest, endpoint, resp.StatusCode)
	}

	var envelope subsonicEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: failed to decode %s response: %v", shared.ErrAPIRequest, endpoint, err)
	}

	result := &envelope.Response
	if result.Status != "ok" {
		return nil, subsonicFailure(endpoint, result.Error)
	}
	return result, nil
}

func subsonicFailure(endpoint string, e *subsonicError) error {
	if e == nil {
		return fmt.Errorf("%w: %s failed without an error payload", shared.ErrAPIRequest, endpoint)
	}
	switch e.Code {
	case codeWrongCredentials, codeTokenUnsupported, codeNotAuthorized:
		return fmt.Errorf("%w: %s (code %d)", shared.ErrAuthFailed, e.Message, e.Code)
	case codeNotFound:
		return fmt.Errorf("%w: %s", shared.ErrNotFound, e.Message)
	default:
		return fmt.Errorf("%w: %s: %s (code %d)", shared.ErrAPIRequest, endpoint, e.Message, e.Code)
	}
}

// unwrapURLError strips the *url.Error wrapper so signed URLs never end up in error messages.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// Ping calls ping.
func (c *SubsonicClient) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, "ping", nil)
	return err
}

// AlbumList calls getAlbumList2 with offset and size.
func (c *SubsonicClient) AlbumList(ctx context.Context, listType AlbumListType, offset, size int) ([]models.Album, error) {
	if listType == "" {
		listType = defaultAlbumList
	}
	params := url.Values{
		"type":   {string(listType)},
		"offset": {strconv.Itoa(offset)},
		"size":   {strconv.Itoa(size)},
	}
	resp, err := c.doRequest(ctx, "getAlbumList2", params)
	if err != nil {
		return nil, err
	}
	if resp.AlbumList2 == nil {
		return []models.Album{}, nil
	}
	return toAlbums(resp.AlbumList2.Album), nil
}

// AlbumTracks calls getAlbum and returns its songs.
func (c *SubsonicClient) AlbumTracks(ctx context.Context, id string) ([]models.Track, error) {
	resp, err := c.doRequest(ctx, "getAlbum", url.Values{"id": {id}})
	if err != nil {
		return nil, err
	}
	if resp.Album == nil {
		return nil, fmt.Errorf("%w: album %s", shared.ErrNotFound, id)
	}
	return toTracks(resp.Album.Song), nil
}

// Playlists calls getPlaylists.
func (c *SubsonicClient) Playlists(ctx context.Context) ([]models.Playlist, error) {
	resp, err := c.doRequest(ctx, "getPlaylists", nil)
	if err != nil {
		return nil, err
	}
	if resp.Playlists == nil {
		return []models.Playlist{}, nil
	}

	playlists := make([]models.Playlist, 0, len(resp.Playlists.Playlist))
	for _, p := range resp.Playlists.Playlist {
		playlists = append(playlists, toPlaylist(p))
	}
	return playlists, nil
}

// Playlist calls getPlaylist.
func (c *SubsonicClient) Playlist(ctx context.Context, id string) (*models.Playlist, error) {
	resp, err := c.doRequest(ctx, "getPlaylist", url.Values{"id": {id}})
	if err != nil {
		return nil, err
	}
	if resp.Playlist == nil {
		return nil, fmt.Errorf("%w: playlist %s", shared.ErrNotFound, id)
	}
	playlist := toPlaylist(*resp.Playlist)
	return &playlist, nil
}

// Artists calls getArtists and flattens the index.
func (c *SubsonicClient) Artists(ctx context.Context) ([]models.Artist, error) {
	resp, err := c.doRequest(ctx, "getArtists", nil)
	if err != nil {
		return nil, err
	}

	artists := []models.Artist{}
	if resp.Artists == nil {
		return artists, nil
	}
	for _, index := range resp.Artists.Index {
		for _, a := range index.Artist {
			artists = append(artists, toArtist(a))
		}
	}
	return artists, nil
}

// Artist calls getArtist.
func (c *SubsonicClient) Artist(ctx context.Context, id string) (*models.Artist, error) {
	resp, err := c.doRequest(ctx, "getArtist", url.Values{"id": {id}})
	if err != nil {
		return nil, err
	}
	if resp.Artist == nil {
		return nil, fmt.Errorf("%w: artist %s", shared.ErrNotFound, id)
	}
	artist := toArtist(*resp.Artist)
	return &artist, nil
}

// Search calls search3. limit applies to each result kind.
func (c *SubsonicClient) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}
	n := strconv.Itoa(limit)
	params := url.Values{"query": {query}, "artistCount": {n}, "albumCount": {n}, "songCount": {n}}

	resp, err := c.doRequest(ctx, "search3", params)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{Artists: []models.Artist{}, Albums: []models.Album{}, Songs: []models.Track{}}
	if resp.SearchResult3 == nil {
		return result, nil
	}
	for _, a := range resp.SearchResult3.Artist {
		result.Artists = append(result.Artists, toArtist(a))
	}
	result.Albums = toAlbums(resp.SearchResult3.Album)
	result.Songs = toTracks(resp.SearchResult3.Song)
	return result, nil
}

func toAlbums(in []subsonicAlbum) []models.Album {
	albums := make([]models.Album, 0, len(in))
	for _, a := range in {
		albums = append(albums, models.Album{
			ID:          a.ID,
			Name:        a.Name,
			Artist:      a.Artist,
			ArtistID:    a.ArtistID,
			Year:        a.Year,
			SongCount:   a.SongCount,
			Duration:    a.Duration,
			ArtworkPath: models.ArtworkPathFor(a.CoverArt, ArtworkSize),
		})
	}
	return albums
}

func toTracks(in []subsonicSong) []models.Track {
	tracks := make([]models.Track, 0, len(in))
	for _, s := range in {
		tracks = append(tracks, models.Track{
			ID:          s.ID,
			Title:       s.Title,
			Artist:      s.Artist,
			Album:       s.Album,
			AlbumID:     s.AlbumID,
			Duration:    s.Duration,
			StreamPath:  models.StreamPathFor(s.ID),
			ArtworkPath: models.ArtworkPathFor(s.CoverArt, ArtworkSize),
		})
	}
	return tracks
}

func toPlaylist(p subsonicPlaylist) models.Playlist {
	return models.Playlist{
		ID:          p.ID,
		Name:        p.Name,
		Owner:       p.Owner,
		Comment:     p.Comment,
		SongCount:   p.SongCount,
		Duration:    p.Duration,
		Public:      p.Public,
		ArtworkPath: models.ArtworkPathFor(p.CoverArt, ArtworkSize),
		Tracks:      toTracks(p.Entry),
	}
}

func toArtist(a subsonicArtist) models.Artist {
	return models.Artist{
		ID:          a.ID,
		Name:        a.Name,
		AlbumCount:  a.AlbumCount,
		ArtworkPath: models.ArtworkPathFor(a.CoverArt, ArtworkSize),
		Albums:      toAlbums(a.Album),
	}
}
