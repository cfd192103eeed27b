// Package youtube is the primary platform.Provider, backing the bulk of
// the download core's test coverage. It wraps the shared internal/platform/ytdlp
// engine with YouTube's URL detection and §4.5.1's exact format-selection
// rules, generalized from the teacher's internal/youtube.Client (which
// hardcoded a single selector and branched only on "is this YouTube").
package youtube

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	apperr "vidreel/internal/errors"
	"vidreel/internal/platform"
	"vidreel/internal/platform/ytdlp"
)

const providerName = "youtube"

// channelExpansionConcurrency bounds how many of a channel's playlists are
// expanded at once (§4.5's "bounded concurrent" per-playlist expansion).
const channelExpansionConcurrency = 4

var hostSuffixes = []string{"youtube.com", "youtu.be", "music.youtube.com"}

// Provider implements platform.Provider for youtube.com / youtu.be URLs.
type Provider struct {
	engine *ytdlp.Engine
}

// New creates a YouTube provider backed by the given yt-dlp/ffmpeg/aria2c
// paths and output directory.
func New(ytDlpPath, ffmpegPath, aria2cPath, outputDir string) *Provider {
	return &Provider{engine: ytdlp.New(ytDlpPath, ffmpegPath, aria2cPath, outputDir)}
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
	return toVideoInfo(info), nil
}

func (p *Provider) GetPlaylistInfo(ctx context.Context, rawURL string) (*platform.PlaylistRecord, error) {
	info, err := p.engine.GetPlaylistInfo(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	videos := make([]platform.VideoInfo, len(info.Entries))
	for i, e := range info.Entries {
		videos[i] = *toVideoInfo(&e)
	}
	return &platform.PlaylistRecord{
		ID:         info.ID,
		Title:      info.Title,
		Uploader:   info.Uploader,
		VideoCount: len(videos),
		Videos:     videos,
		Platform:   providerName,
		URL:        rawURL,
		PageSize:   len(videos),
	}, nil
}

// GetChannelInfo implements §4.5's two-step channel extraction: a
// channel-level listing of the channel's playlists/tabs, followed by a
// bounded concurrent expansion of each one via GetPlaylistInfo.
func (p *Provider) GetChannelInfo(ctx context.Context, rawURL string) (*platform.ChannelRecord, error) {
	const op = "youtube.GetChannelInfo"

	listing, err := p.engine.GetChannelListing(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	playlists := make([]platform.PlaylistRecord, len(listing.Entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(channelExpansionConcurrency)
	for i, ref := range listing.Entries {
		i, ref := i, ref
		g.Go(func() error {
			record, err := p.GetPlaylistInfo(gctx, ref.URL)
			if err != nil {
				return err
			}
			if record.Title == "" {
				record.Title = ref.Title
			}
			playlists[i] = *record
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, apperr.Wrap(op, apperr.VideoUnavailable, err)
	}

	var allVideos []platform.VideoInfo
	for _, pl := range playlists {
		allVideos = append(allVideos, pl.Videos...)
	}

	return &platform.ChannelRecord{
		ID:        listing.ID,
		Name:      listing.Title,
		Platform:  providerName,
		URL:       rawURL,
		Playlists: playlists,
		AllVideos: allVideos,
	}, nil
}

func (p *Provider) Download(ctx context.Context, outputDir string, opts platform.DownloadOptions, onProgress platform.ProgressFunc, onLog platform.LogFunc) error {
	engineOpts := ytdlp.Options{
		URL:               opts.URL,
		FormatSelector:    formatSelector(opts),
		AudioOnly:         opts.AudioOnly,
		AudioFormat:       opts.AudioFormat,
		AudioBitrate:      opts.AudioBitrate,
		MergeFormat:       string(opts.Format),
		DownloadSubtitles: opts.DownloadSubtitles,
		SubtitleLanguage:  opts.SubtitleLanguage,
		EmbedSubtitles:    opts.EmbedSubtitles,
		EmbedThumbnail:    opts.EmbedThumbnail,
		SkipExisting:      opts.SkipExisting,
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
		{Key: "quality", Label: "Video quality", Kind: "enum", Options: []string{"best", "1080p", "720p", "480p", "360p"}, DefaultText: "best"},
		{Key: "format", Label: "Container", Kind: "enum", Options: []string{"mp4", "mkv", "webm"}, DefaultText: "mp4"},
		{Key: "audio_only", Label: "Audio only", Kind: "bool", DefaultText: "false"},
		{Key: "subtitle_language", Label: "Subtitle language", Kind: "string", DefaultText: "en"},
	}
}

// formatSelector implements §4.5.1's three rules:
//  1. Audio-only downloads bypass format selection entirely (handled by -x
//     in the engine); this function is not consulted.
//  2. Quality "best" or unset: the richest available video in the chosen
//     container (mp4 when unset) merged with the best audio.
//  3. A specific resolution cap: video bounded by that height in the chosen
//     container, merged with the best available audio.
func formatSelector(opts platform.DownloadOptions) string {
	if opts.AudioOnly {
		return ""
	}

	ext := string(opts.Format)
	if ext == "" {
		ext = "mp4"
	}

	switch opts.Quality {
	case "", platform.QualityBest:
		return fmt.Sprintf("bestvideo[ext=%s]+bestaudio/best[ext=%s]/best", ext, ext)
	case platform.Quality1080, platform.Quality720, platform.Quality480, platform.Quality360:
		height := heightFor(opts.Quality)
		return fmt.Sprintf("bestvideo[height<=%d][ext=%s]+bestaudio/best[height<=%d]", height, ext, height)
	default:
		return "best"
	}
}

func heightFor(q platform.Quality) int {
	digits := strings.TrimSuffix(string(q), "p")
	h, err := strconv.Atoi(digits)
	if err != nil {
		return 1080
	}
	return h
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
