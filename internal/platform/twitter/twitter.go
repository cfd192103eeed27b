// Package twitter implements platform.Provider for twitter.com/x.com URLs.
// Downloads are delegated entirely to the shared internal/platform/ytdlp
// engine (real yt-dlp has a native Twitter extractor); this package's own
// contribution, adapted from the teacher's internal/twitter HTML-scraping
// client, is a secondary thumbnail lookup used when yt-dlp's own thumbnail
// field comes back empty (common for image-only tweets).
package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	apperr "vidreel/internal/errors"
	"vidreel/internal/platform"
	"vidreel/internal/platform/ytdlp"
)

const providerName = "twitter"

var hostSuffixes = []string{"twitter.com", "x.com"}

var (
	tweetIDRegex  = regexp.MustCompile(`(?:twitter\.com|x\.com)/[^/]+/status/(\d+)`)
	mediaURLRegex = regexp.MustCompile(`"media_url_https"\s*:\s*"([^"]+)"`)
	ogImageRegex  = regexp.MustCompile(`<meta[^>]+property=["']og:image["'][^>]+content=["']([^"']+)["']`)
)

// Provider implements platform.Provider for Twitter/X.
type Provider struct {
	engine     *ytdlp.Engine
	httpClient *http.Client
}

// New creates a Twitter provider backed by the shared yt-dlp engine.
func New(ytDlpPath, ffmpegPath, aria2cPath, outputDir string) *Provider {
	return &Provider{
		engine:     ytdlp.New(ytDlpPath, ffmpegPath, aria2cPath, outputDir),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Detect(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, host := range hostSuffixes {
		if strings.Contains(lower, host) {
			return true
		}
	}
	return false
}

func (p *Provider) VerifyDependencies(ctx context.Context) error {
	return p.engine.VerifyDependencies(ctx)
}

func (p *Provider) GetVideoInfo(ctx context.Context, rawURL string) (*platform.VideoInfo, error) {
	info, err := p.engine.GetVideoInfo(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	out := toVideoInfo(info)
	if out.Thumbnail == "" {
		if thumb, err := p.fetchThumbnail(ctx, rawURL); err == nil {
			out.Thumbnail = thumb
		}
	}
	return out, nil
}

func (p *Provider) GetPlaylistInfo(ctx context.Context, rawURL string) (*platform.PlaylistRecord, error) {
	info, err := p.GetVideoInfo(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return &platform.PlaylistRecord{
		ID:         info.ID,
		Title:      info.Title,
		Uploader:   info.Uploader,
		VideoCount: 1,
		Videos:     []platform.VideoInfo{*info},
		Platform:   providerName,
		URL:        rawURL,
		PageSize:   1,
	}, nil
}

// GetChannelInfo is unsupported: a tweet has no channel concept distinct
// from its author's timeline, which yt-dlp cannot enumerate without auth.
func (p *Provider) GetChannelInfo(ctx context.Context, rawURL string) (*platform.ChannelRecord, error) {
	return nil, apperr.New("twitter.GetChannelInfo", apperr.InvalidURL, "twitter does not support channel URLs")
}

func (p *Provider) Download(ctx context.Context, outputDir string, opts platform.DownloadOptions, onProgress platform.ProgressFunc, onLog platform.LogFunc) error {
	engineOpts := ytdlp.Options{
		URL:               opts.URL,
		FormatSelector:    "best",
		AudioOnly:         opts.AudioOnly,
		AudioFormat:       opts.AudioFormat,
		AudioBitrate:      opts.AudioBitrate,
		MergeFormat:       string(opts.Format),
		SkipExisting:      opts.SkipExisting,
		EmbedThumbnail:    opts.EmbedThumbnail,
		UseAria2c:         opts.UseAria2c,
		Aria2cConnections: opts.Aria2cConnections,
	}

	return p.engine.Download(ctx, engineOpts,
		func(pr ytdlp.Progress) {
			if onProgress != nil {
				onProgress(platform.Progress{
					Percent:  pr.Percent,
					Speed:    pr.Speed,
					ETA:      pr.ETA,
					Status:   pr.Status,
					Filename: pr.Filename,
				})
			}
		},
		onLog,
	)
}

func (p *Provider) Settings() []platform.Setting {
	return []platform.Setting{
		{Key: "format", Label: "Container", Kind: "enum", Options: []string{"mp4"}, DefaultText: "mp4"},
		{Key: "embed_thumbnail", Label: "Embed thumbnail", Kind: "bool", DefaultText: "true"},
	}
}

// fetchThumbnail looks up an image for a tweet without auth, for image-only
// tweets that yt-dlp's extractor sometimes skips: first the syndication
// API's photo list, then the tweet page's og:image or media_url_https.
func (p *Provider) fetchThumbnail(ctx context.Context, tweetURL string) (string, error) {
	id := extractTweetID(tweetURL)
	if id == "" {
		return "", fmt.Errorf("no tweet id in url")
	}

	if url, err := p.thumbnailFromSyndication(ctx, id); err == nil && url != "" {
		return url, nil
	}
	return p.thumbnailFromHTML(ctx, tweetURL)
}

func extractTweetID(rawURL string) string {
	m := tweetIDRegex.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func (p *Provider) thumbnailFromSyndication(ctx context.Context, tweetID string) (string, error) {
	apiURL := fmt.Sprintf("https://cdn.syndication.twimg.com/tweet-result?id=%s&token=x", tweetID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("syndication API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}

	var data struct {
		Photos []struct {
			URL string `json:"url"`
		} `json:"photos"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return "", err
	}
	if len(data.Photos) == 0 {
		return "", fmt.Errorf("no photos in syndication response")
	}
	return data.Photos[0].URL, nil
}

func (p *Provider) thumbnailFromHTML(ctx context.Context, tweetURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tweetURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Linux; Android 6.0.1; Nexus 5X Build/MMB29P) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("twitter returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", err
	}
	html := string(body)

	if m := ogImageRegex.FindStringSubmatch(html); len(m) >= 2 {
		return unescapeHTML(m[1]), nil
	}
	if m := mediaURLRegex.FindStringSubmatch(html); len(m) >= 2 {
		return unescapeJSON(m[1]), nil
	}
	return "", fmt.Errorf("no media url found")
}

func unescapeJSON(s string) string {
	s = strings.ReplaceAll(s, `\/`, `/`)
	s = strings.ReplaceAll(s, `\u0026`, `&`)
	return s
}

func unescapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	return s
}

func toVideoInfo(v *ytdlp.VideoInfo) *platform.VideoInfo {
	formats := make([]platform.FormatInfo, len(v.Formats))
	for i, f := range v.Formats {
		formats[i] = platform.FormatInfo{
			ID:         f.FormatID,
			Ext:        f.Ext,
			Resolution: string(f.Resolution),
			Filesize:   f.Filesize,
			VCodec:     f.VCodec,
			ACodec:     f.ACodec,
		}
	}
	return &platform.VideoInfo{
		ID:        v.ID,
		Title:     v.Title,
		URL:       v.URL,
		Duration:  int(v.Duration),
		Thumbnail: v.Thumbnail,
		Uploader:  v.Uploader,
		Formats:   formats,
	}
}
