// Package steamweb implements catalog.Client against the Steam Web API.
//
// All failures surface as apperror.ErrUpstream so the scan engine's
// partial-failure handling treats transport errors, rate limits and API
// errors uniformly. Requests are paced by a simple interval gate; Steam
// throttles aggressively on burst traffic.
package steamweb

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/mhalvorsen/achievo/internal/apperror"
	"github.com/mhalvorsen/achievo/internal/catalog"
)

const (
	defaultBaseURL  = "https://api.steampowered.com"
	requestInterval = 300 * time.Millisecond
	iconURLFormat   = "https://media.steampowered.com/steamcommunity/public/images/apps/%d/%s.jpg"
)

// Client calls the Steam Web API for one account.
type Client struct {
	baseURL string
	apiKey  string
	steamID string
	http    *http.Client
	pace    <-chan time.Time
}

var _ catalog.Client = (*Client)(nil)

// New builds a client for the given API key and 64-bit Steam id.
func New(apiKey, steamID string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		steamID: steamID,
		http:    &http.Client{Timeout: 30 * time.Second},
		pace:    time.Tick(requestInterval),
	}
}

type ownedGamesResponse struct {
	Response struct {
		Games []struct {
			AppID           int64  `json:"appid"`
			Name            string `json:"name"`
			PlaytimeForever int64  `json:"playtime_forever"`
			RTimeLastPlayed int64  `json:"rtime_last_played"`
			ImgIconURL      string `json:"img_icon_url"`
		} `json:"games"`
	} `json:"response"`
}

// OwnedGames fetches the full owned-game list.
func (c *Client) OwnedGames(ctx context.Context) ([]catalog.OwnedGame, error) {
	params := url.Values{
		"key":                       {c.apiKey},
		"steamid":                   {c.steamID},
		"include_appinfo":           {"1"},
		"include_played_free_games": {"1"},
		"format":                    {"json"},
	}
	var resp ownedGamesResponse
	if err := c.get(ctx, "/IPlayerService/GetOwnedGames/v0001/", params, &resp); err != nil {
		return nil, err
	}
	return c.toOwned(resp), nil
}

type recentlyPlayedResponse struct {
	Response struct {
		Games []struct {
			AppID           int64  `json:"appid"`
			Name            string `json:"name"`
			PlaytimeForever int64  `json:"playtime_forever"`
			ImgIconURL      string `json:"img_icon_url"`
		} `json:"games"`
	} `json:"response"`
}

// RecentlyPlayed fetches games played within the provider's recent window.
func (c *Client) RecentlyPlayed(ctx context.Context) ([]catalog.OwnedGame, error) {
	params := url.Values{
		"key":     {c.apiKey},
		"steamid": {c.steamID},
		"format":  {"json"},
	}
	var resp recentlyPlayedResponse
	if err := c.get(ctx, "/IPlayerService/GetRecentlyPlayedGames/v0001/", params, &resp); err != nil {
		return nil, err
	}
	games := make([]catalog.OwnedGame, 0, len(resp.Response.Games))
	for _, g := range resp.Response.Games {
		games = append(games, catalog.OwnedGame{
			AppID:           g.AppID,
			Name:            g.Name,
			PlaytimeMinutes: g.PlaytimeForever,
			// The recently-played endpoint has no last-played stamp;
			// being in this list at all means "within the window".
			LastPlayed: time.Now(),
			IconURL:    iconURL(g.AppID, g.ImgIconURL),
		})
	}
	return games, nil
}

type schemaResponse struct {
	Game struct {
		AvailableGameStats struct {
			Achievements []struct {
				Name        string `json:"name"`
				DisplayName string `json:"displayName"`
				Description string `json:"description"`
				Icon        string `json:"icon"`
				IconGray    string `json:"icongray"`
			} `json:"achievements"`
		} `json:"availableGameStats"`
	} `json:"game"`
}

// AchievementSchema fetches the achievement definitions for one game. Games
// without achievements return an empty slice.
func (c *Client) AchievementSchema(ctx context.Context, appID int64) ([]catalog.SchemaAchievement, error) {
	params := url.Values{
		"key":    {c.apiKey},
		"appid":  {fmt.Sprintf("%d", appID)},
		"format": {"json"},
	}
	var resp schemaResponse
	if err := c.get(ctx, "/ISteamUserStats/GetSchemaForGame/v2/", params, &resp); err != nil {
		return nil, err
	}
	defs := resp.Game.AvailableGameStats.Achievements
	out := make([]catalog.SchemaAchievement, 0, len(defs))
	for _, d := range defs {
		out = append(out, catalog.SchemaAchievement{
			APIName:     d.Name,
			Name:        d.DisplayName,
			Description: d.Description,
			IconURL:     d.Icon,
			IconGrayURL: d.IconGray,
		})
	}
	return out, nil
}

type playerAchievementsResponse struct {
	PlayerStats struct {
		Success      bool `json:"success"`
		Achievements []struct {
			APIName    string `json:"apiname"`
			Achieved   int    `json:"achieved"`
			UnlockTime int64  `json:"unlocktime"`
		} `json:"achievements"`
	} `json:"playerstats"`
}

// PlayerAchievements fetches the player's progress for one game.
func (c *Client) PlayerAchievements(ctx context.Context, appID int64) ([]catalog.PlayerAchievement, error) {
	params := url.Values{
		"key":     {c.apiKey},
		"steamid": {c.steamID},
		"appid":   {fmt.Sprintf("%d", appID)},
		"format":  {"json"},
	}
	var resp playerAchievementsResponse
	if err := c.get(ctx, "/ISteamUserStats/GetPlayerAchievements/v0001/", params, &resp); err != nil {
		return nil, err
	}
	out := make([]catalog.PlayerAchievement, 0, len(resp.PlayerStats.Achievements))
	for _, a := range resp.PlayerStats.Achievements {
		out = append(out, catalog.PlayerAchievement{
			APIName:    a.APIName,
			Achieved:   a.Achieved == 1,
			UnlockTime: a.UnlockTime,
		})
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	select {
	case <-c.pace:
	case <-ctx.Done():
		return ctx.Err()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return apperror.Upstream(path, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apperror.Upstream(path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return apperror.Upstream(path, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.Upstream(path, fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func (c *Client) toOwned(resp ownedGamesResponse) []catalog.OwnedGame {
	games := make([]catalog.OwnedGame, 0, len(resp.Response.Games))
	for _, g := range resp.Response.Games {
		var lastPlayed time.Time
		if g.RTimeLastPlayed > 0 {
			lastPlayed = time.Unix(g.RTimeLastPlayed, 0)
		}
		games = append(games, catalog.OwnedGame{
			AppID:           g.AppID,
			Name:            g.Name,
			PlaytimeMinutes: g.PlaytimeForever,
			LastPlayed:      lastPlayed,
			IconURL:         iconURL(g.AppID, g.ImgIconURL),
		})
	}
	return games
}

func iconURL(appID int64, hash string) string {
	if hash == "" {
		return ""
	}
	return fmt.Sprintf(iconURLFormat, appID, hash)
}
