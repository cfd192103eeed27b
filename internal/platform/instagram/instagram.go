// Package instagram implements platform.Provider for instagram.com post and
// reel URLs. Downloads are delegated to the shared internal/platform/ytdlp
// engine; this package's own contribution, adapted from the teacher's
// internal/instagram HTML-scraping client, is a secondary thumbnail lookup
// for when yt-dlp's own thumbnail field comes back empty — Instagram has
// required login for most anonymous API access since December 2024, so this
// scrape is best-effort and never the only way to fetch media.
package instagram

import (
	"context"
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

const providerName = "instagram"

var (
	shortcodeRegex  = regexp.MustCompile(`instagram\.com/(?:p|reel|reels)/([A-Za-z0-9_-]+)`)
	displayURLRegex = regexp.MustCompile(`"display_url"\s*:\s*"([^"]+)"`)
	ogImageRegex    = regexp.MustCompile(`property="og:image"\s+content="([^"]+)"`)
	cropRegex       = regexp.MustCompile(`/c\d+\.\d+\.\d+\.\d+(?:a|p)?/`)
	resizeRegex     = regexp.MustCompile(`/(?:s|p|e)\d+x\d+/`)
)

// Provider implements platform.Provider for Instagram.
type Provider struct {
	engine     *ytdlp.Engine
	httpClient *http.Client
}

// New creates an Instagram provider backed by the shared yt-dlp engine.
func New(ytDlpPath, ffmpegPath, aria2cPath, outputDir string) *Provider {
	return &Provider{
		engine:     ytdlp.New(ytDlpPath, ffmpegPath, aria2cPath, outputDir),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *Provider) Name() string { return providerName }

func (p *Provider) Detect(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), "instagram.com")
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

// GetChannelInfo is unsupported: Instagram profiles require authenticated
// access to enumerate, which this anonymous scrape-based provider lacks.
func (p *Provider) GetChannelInfo(ctx context.Context, rawURL string) (*platform.ChannelRecord, error) {
	return nil, apperr.New("instagram.GetChannelInfo", apperr.InvalidURL, "instagram does not support channel URLs")
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

func (p *Provider) fetchThumbnail(ctx context.Context, postURL string) (string, error) {
	shortcode := extractShortcode(postURL)
	if shortcode == "" {
		return "", fmt.Errorf("no shortcode in url")
	}

	canonicalURL := fmt.Sprintf("https://www.instagram.com/p/%s/", shortcode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, canonicalURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("instagram returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", err
	}
	html := string(body)

	if m := displayURLRegex.FindStringSubmatch(html); len(m) >= 2 {
		if url := upgradeImageURL(unescapeJSON(m[1])); isValidCDNUrl(url) {
			return url, nil
		}
	}
	if m := ogImageRegex.FindStringSubmatch(html); len(m) >= 2 {
		if url := upgradeImageURL(unescapeHTML(m[1])); isValidCDNUrl(url) {
			return url, nil
		}
	}
	return "", fmt.Errorf("no media url found")
}

func extractShortcode(rawURL string) string {
	m := shortcodeRegex.FindStringSubmatch(rawURL)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}

func isValidCDNUrl(url string) bool {
	return strings.Contains(url, "cdninstagram") ||
		strings.Contains(url, "fbcdn") ||
		strings.Contains(url, "scontent")
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

// upgradeImageURL strips crop/resize path segments to recover the
// original-resolution CDN URL where possible.
func upgradeImageURL(url string) string {
	url = cropRegex.ReplaceAllString(url, "/")
	url = resizeRegex.ReplaceAllString(url, "/")
	return url
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
