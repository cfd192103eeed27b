// Package ytdlp is the shared yt-dlp/ffmpeg subprocess engine used by every
// platform provider (§4.5). It is the direct descendant of the teacher's
// internal/youtube.Client, generalized so internal/platform/youtube,
// internal/platform/twitter and internal/platform/instagram can each wrap
// it with their own URL-detection and default options instead of each
// reimplementing process supervision and progress parsing.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/alessio/shellescape"
	"github.com/dannav/hhmmss"
	"github.com/dustin/go-humanize"

	apperr "vidreel/internal/errors"
	"vidreel/internal/logger"
)

const (
	// concurrentFragments controls how many video fragments download in parallel.
	concurrentFragments = "4"
	// bufferSize for reading yt-dlp output.
	bufferSize = "16K"
)

var (
	// destinationRegex matches yt-dlp's "[download] Destination: <path>" line (§4.5.2 case 2).
	destinationRegex = regexp.MustCompile(`^\[download\] Destination: (.+)$`)

	// progressRegex matches the standard progress line (§4.5.2 case 1), e.g.:
	// "[download]  45.2% of   10.00MiB at    1.21MiB/s ETA 00:07"
	progressRegex = regexp.MustCompile(`(\d+\.?\d*)%\s+of\s+~?\s*([\d.]+\s*\S+)\s+at\s+([\d.]+\s*\S+/s)\s+ETA\s+(\S+)`)

	// bareProgressRegex is a looser fallback for lines that only carry a
	// percentage (aria2c output, or a yt-dlp line missing size/speed/eta).
	bareProgressRegex = regexp.MustCompile(`(\d+\.?\d*)%`)

	// completionRegex matches yt-dlp's terminal lines for an already-complete
	// or just-finished download (§4.5.2 case 3).
	completionRegex = regexp.MustCompile(`100%|has already been downloaded`)

	ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*m`)
)

// sanitizeUTF8 repairs CP1252/Latin-1 bytes yt-dlp occasionally emits on
// Windows so accented titles don't corrupt terminal/log output.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var result []rune
	for i := 0; i < len(s); i++ {
		result = append(result, rune(s[i]))
	}
	return string(result)
}

// VideoInfo mirrors the subset of yt-dlp's --dump-json output this engine
// understands. Fields use custom unmarshalers because yt-dlp's JSON shape
// varies by extractor (duration as int or float, resolution as null/string).
type VideoInfo struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	URL         string      `json:"url"`
	Duration    FlexibleInt `json:"duration"`
	Thumbnail   string      `json:"thumbnail"`
	Uploader    string      `json:"uploader"`
	Description string      `json:"description"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	Formats     []Format    `json:"formats"`
}

// Format is one selectable stream from yt-dlp's format list.
type Format struct {
	FormatID   string     `json:"format_id"`
	URL        string     `json:"url"`
	Ext        string     `json:"ext"`
	Resolution Resolution `json:"resolution"`
	Filesize   int64      `json:"filesize"`
	VCodec     string     `json:"vcodec"`
	ACodec     string     `json:"acodec"`
	Height     int        `json:"height"`
	Width      int        `json:"width"`
}

// Resolution handles yt-dlp's null-or-string resolution field.
type Resolution string

func (r *Resolution) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*r = ""
		return nil
	}
	*r = Resolution(s)
	return nil
}

// FlexibleInt accepts duration reported as either an int or a float64.
type FlexibleInt int

func (f *FlexibleInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = 0
		return nil
	}
	var i int
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexibleInt(i)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = FlexibleInt(int(n))
		return nil
	}
	*f = 0
	return nil
}

// Progress is a single parsed progress line.
type Progress struct {
	Percent  float64
	Speed    string
	ETA      string
	Status   string
	Filename string
}

// ProgressFunc/LogFunc mirror internal/platform's callback shapes so
// wrapper providers can pass them straight through.
type ProgressFunc func(Progress)
type LogFunc func(line string)

// Options parameterizes Download. FormatSelector, when non-empty, is used
// verbatim as yt-dlp's -f argument; wrapper providers compute it from the
// platform-agnostic platform.DownloadOptions (§4.5.1).
type Options struct {
	URL               string
	FormatSelector    string // empty => "best" fallback, used for non-YouTube sites
	AudioOnly         bool
	AudioFormat       string
	AudioBitrate      string
	MergeFormat       string // mp4, mkv, webm
	DownloadSubtitles bool
	SubtitleLanguage  string
	EmbedSubtitles    bool
	EmbedThumbnail    bool
	SkipExisting      bool
	UseAria2c         bool
	Aria2cConnections int
}

// Engine wraps one yt-dlp + ffmpeg installation.
type Engine struct {
	ytDlpPath  string
	ffmpegPath string
	aria2cPath string
	outputDir  string
}

// New creates an Engine. aria2cPath may be empty, which disables
// multi-connection downloads regardless of Options.UseAria2c.
func New(ytDlpPath, ffmpegPath, aria2cPath, outputDir string) *Engine {
	return &Engine{
		ytDlpPath:  ytDlpPath,
		ffmpegPath: ffmpegPath,
		aria2cPath: aria2cPath,
		outputDir:  outputDir,
	}
}

// HasAria2 reports whether a usable aria2c binary was configured.
func (e *Engine) HasAria2() bool {
	return e.aria2cPath != ""
}

// VerifyDependencies shells `yt-dlp --version` and `ffmpeg -version` and
// fails with MissingDependency if either does not run.
func (e *Engine) VerifyDependencies(ctx context.Context) error {
	if out, err := exec.CommandContext(ctx, e.ytDlpPath, "--version").CombinedOutput(); err != nil {
		return apperr.New("ytdlp.VerifyDependencies", apperr.MissingDependency,
			fmt.Sprintf("yt-dlp did not respond to --version: %v (%s)", err, strings.TrimSpace(string(out))))
	}
	if out, err := exec.CommandContext(ctx, e.ffmpegPath, "-version").CombinedOutput(); err != nil {
		return apperr.New("ytdlp.VerifyDependencies", apperr.MissingDependency,
			fmt.Sprintf("ffmpeg did not respond to -version: %v (%s)", err, strings.TrimSpace(string(out))))
	}
	return nil
}

func (e *Engine) newCommand(ctx context.Context, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, e.ytDlpPath, args...)
	setSysProcAttr(cmd)
	cmd.Env = append(cmd.Environ(),
		"PYTHONIOENCODING=utf-8",
		"PYTHONUTF8=1",
		"LC_ALL=en_US.UTF-8",
		"LANG=en_US.UTF-8",
	)
	return cmd
}

// GetVideoInfo fetches metadata for a single URL.
func (e *Engine) GetVideoInfo(ctx context.Context, url string) (*VideoInfo, error) {
	args := []string{
		"--dump-json",
		"--no-playlist",
		"--no-check-formats",
		"--no-check-certificate",
		"--no-warnings",
		"--extractor-retries", "0",
		"--socket-timeout", "10",
		"--ignore-errors",
		url,
	}

	cmd := e.newCommand(ctx, args)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Log.Debug().Str("cmd", shellescape.QuoteCommand(cmd.Args)).Msg("running yt-dlp")

	output, err := cmd.Output()
	if err != nil {
		return nil, classifyMetadataError(strings.TrimSpace(stderr.String()), err)
	}

	var info VideoInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return nil, apperr.Wrap("ytdlp.GetVideoInfo", apperr.DownloadFailed, err)
	}
	return &info, nil
}

// PlaylistInfo mirrors yt-dlp's "_type":"playlist" JSON shape: an envelope
// record plus the flattened list of videos it contains.
type PlaylistInfo struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Uploader string      `json:"uploader"`
	Entries  []VideoInfo `json:"entries"`
}

// GetPlaylistInfo fetches metadata for every entry in a playlist/channel
// URL, plus the playlist's own title/uploader. yt-dlp returns either one
// "_type":"playlist" JSON object with an entries array, or one JSON object
// per line — both are handled.
func (e *Engine) GetPlaylistInfo(ctx context.Context, url string) (*PlaylistInfo, error) {
	args := []string{
		"--dump-json",
		"--no-check-formats",
		"--no-check-certificate",
		"--no-warnings",
		"--extractor-retries", "1",
		"--socket-timeout", "15",
		"--ignore-errors",
		url,
	}

	cmd := e.newCommand(ctx, args)
	output, err := cmd.Output()
	if err != nil {
		return nil, apperr.Wrap("ytdlp.GetPlaylistInfo", apperr.NetworkError, err)
	}

	var playlist struct {
		Type string `json:"_type"`
		PlaylistInfo
	}
	if err := json.Unmarshal(output, &playlist); err == nil && playlist.Type == "playlist" {
		return &playlist.PlaylistInfo, nil
	}

	var results []VideoInfo
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		var info VideoInfo
		if err := json.Unmarshal(scanner.Bytes(), &info); err == nil {
			results = append(results, info)
		}
	}

	if len(results) == 0 {
		var info VideoInfo
		if err := json.Unmarshal(output, &info); err == nil {
			return &PlaylistInfo{ID: info.ID, Title: info.Title, Uploader: info.Uploader, Entries: []VideoInfo{info}}, nil
		}
		return nil, apperr.New("ytdlp.GetPlaylistInfo", apperr.VideoUnavailable, "failed to parse playlist metadata")
	}

	return &PlaylistInfo{Entries: results}, nil
}

// ChannelRef is one playlist (a tab such as "Videos" or "Shorts", or a
// user-created playlist) nested inside a channel-level listing.
type ChannelRef struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// ChannelListing mirrors yt-dlp's channel-level "_type":"playlist" JSON
// shape, where each entry is itself a nested playlist reference rather
// than a video (§4.5: "channel-level listing + per-playlist expansion").
type ChannelListing struct {
	ID      string       `json:"id"`
	Title   string       `json:"title"`
	Entries []ChannelRef `json:"entries"`
}

// GetChannelListing fetches the channel-level tab/playlist listing without
// expanding any of them. Per-playlist expansion is the caller's job, via a
// second GetPlaylistInfo call per entry.
func (e *Engine) GetChannelListing(ctx context.Context, url string) (*ChannelListing, error) {
	args := []string{
		"--dump-single-json",
		"--flat-playlist",
		"--no-check-certificate",
		"--no-warnings",
		"--extractor-retries", "1",
		"--socket-timeout", "15",
		"--ignore-errors",
		url,
	}

	cmd := e.newCommand(ctx, args)
	output, err := cmd.Output()
	if err != nil {
		return nil, apperr.Wrap("ytdlp.GetChannelListing", apperr.NetworkError, err)
	}

	var listing ChannelListing
	if err := json.Unmarshal(output, &listing); err != nil {
		return nil, apperr.Wrap("ytdlp.GetChannelListing", apperr.VideoUnavailable, err)
	}
	for i, ref := range listing.Entries {
		if ref.URL == "" {
			listing.Entries[i].URL = url
		}
	}
	return &listing, nil
}

func classifyMetadataError(stderr string, err error) error {
	lower := strings.ToLower(stderr)
	switch {
	case strings.Contains(lower, "video unavailable"), strings.Contains(lower, "private video"):
		return apperr.New("ytdlp.GetVideoInfo", apperr.VideoUnavailable, stderr)
	case strings.Contains(lower, "unable to download webpage"), strings.Contains(lower, "network"):
		return apperr.New("ytdlp.GetVideoInfo", apperr.NetworkError, stderr)
	case stderr != "":
		return apperr.New("ytdlp.GetVideoInfo", apperr.DownloadFailed, stderr)
	default:
		return apperr.Wrap("ytdlp.GetVideoInfo", apperr.DownloadFailed, err)
	}
}

// Download runs yt-dlp to completion, streaming merged stdout+stderr through
// the four-case progress parser of §4.5.2 and invoking onProgress/onLog as
// each line is classified. Cancelling ctx (or reaching its deadline) kills
// the child; remaining output is read until the pipe closes, Wait reaps the
// child, and Download returns an OperationCancelled error.
func (e *Engine) Download(ctx context.Context, opts Options, onProgress ProgressFunc, onLog LogFunc) error {
	args := []string{
		"--ffmpeg-location", e.ffmpegPath,
		"--newline",
		"-o", fmt.Sprintf("%s/%%(title)s.%%(ext)s", e.outputDir),
		"--no-playlist",
		"--no-check-certificate",
		"--concurrent-fragments", concurrentFragments,
		"--buffer-size", bufferSize,
		"--no-warnings",
	}

	if opts.UseAria2c && e.aria2cPath != "" {
		connections := opts.Aria2cConnections
		if connections <= 0 {
			connections = 16
		}
		aria2Args := fmt.Sprintf("aria2c:-x %d -s %d -k 1M --file-allocation=none", connections, connections)
		args = append(args, "--external-downloader", e.aria2cPath, "--external-downloader-args", aria2Args)
	}

	if opts.SkipExisting {
		args = append(args, "--no-overwrites")
	} else {
		args = append(args, "--force-overwrites")
	}

	if opts.EmbedThumbnail {
		args = append(args, "--embed-thumbnail")
	}

	if opts.AudioOnly {
		args = append(args, "-x")
		audioFormat := opts.AudioFormat
		if audioFormat == "" {
			audioFormat = "mp3"
		}
		args = append(args, "--audio-format", audioFormat)
		if opts.AudioBitrate != "" {
			args = append(args, "--audio-quality", opts.AudioBitrate+"K")
		} else {
			args = append(args, "--audio-quality", "0")
		}
	} else {
		format := opts.FormatSelector
		if format == "" {
			format = "best"
		}
		args = append(args, "-f", format)

		mergeFormat := opts.MergeFormat
		if mergeFormat == "" {
			mergeFormat = "mp4"
		}
		args = append(args, "--merge-output-format", mergeFormat)

		if opts.DownloadSubtitles {
			args = append(args, "--write-subs", "--write-auto-subs")
			lang := opts.SubtitleLanguage
			if lang == "" {
				lang = "en"
			}
			args = append(args, "--sub-langs", lang)
			if opts.EmbedSubtitles {
				args = append(args, "--embed-subs")
			}
		}
	}

	args = append(args, opts.URL)

	cmd := e.newCommand(ctx, args)
	logger.Log.Debug().Str("cmd", shellescape.QuoteCommand(cmd.Args)).Msg("starting download")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return apperr.Wrap("ytdlp.Download", apperr.DownloadFailed, err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return apperr.Wrap("ytdlp.Download", apperr.DownloadFailed, err)
	}

	killed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if cmd.Process != nil {
				cmd.Process.Kill()
			}
			close(killed)
		case <-killed:
		}
	}()

	scanner := bufio.NewScanner(stdout)
	scanner.Split(splitOnCROrLF)

	for scanner.Scan() {
		rawLine := scanner.Text()
		line := strings.TrimSpace(sanitizeUTF8(ansiRegex.ReplaceAllString(rawLine, "")))
		if line == "" {
			continue
		}
		if onLog != nil {
			onLog(line)
		}
		if p, ok := parseProgressLine(line); ok && onProgress != nil {
			onProgress(p)
		}
	}

	waitErr := cmd.Wait()
	select {
	case <-killed:
	default:
		close(killed)
	}

	if waitErr != nil {
		select {
		case <-ctx.Done():
			return apperr.New("ytdlp.Download", apperr.OperationCancelled, "download cancelled")
		default:
			if onProgress != nil {
				onProgress(Progress{Status: "failed"})
			}
			return apperr.Wrap("ytdlp.Download", apperr.DownloadFailed, waitErr)
		}
	}

	if onProgress != nil {
		onProgress(Progress{Percent: 100, Status: "completed"})
	}
	return nil
}

// splitOnCROrLF is a bufio.SplitFunc that breaks on either \r or \n, which
// yt-dlp/aria2c both use for in-place progress updates.
func splitOnCROrLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			return i + 2, data[0:i], nil
		}
		return i + 1, data[0:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// parseProgressLine implements the four ordered cases of §4.5.2. A line
// that matches none of them is a no-op: it is still forwarded to onLog by
// the caller, but produces no progress update. Parsing never panics — a
// malformed percentage or size string simply falls through.
func parseProgressLine(line string) (Progress, bool) {
	// Case 2: destination line, carries the output filename.
	if m := destinationRegex.FindStringSubmatch(line); len(m) == 2 {
		return Progress{Status: "downloading", Filename: m[1]}, true
	}

	// Case 3: completion line.
	if completionRegex.MatchString(line) {
		return Progress{Percent: 100, Status: "merging_or_complete"}, true
	}

	// Case 1: standard progress line with size/speed/eta.
	if m := progressRegex.FindStringSubmatch(line); len(m) == 5 {
		percent, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return Progress{}, false
		}
		p := Progress{Percent: percent, Status: "downloading", Speed: strings.TrimSpace(m[3])}
		if sizeBytes, err := humanize.ParseBytes(strings.ReplaceAll(m[2], " ", "")); err == nil {
			logger.Log.Trace().Uint64("total_bytes", sizeBytes).Msg("parsed progress line size")
		}
		if d, err := hhmmss.Parse(normalizeETA(m[4])); err == nil {
			p.ETA = d.String()
		} else {
			p.ETA = m[4]
		}
		return p, true
	}

	// Fallback: a bare percentage with no size/speed/eta (aria2c output).
	if m := bareProgressRegex.FindStringSubmatch(line); len(m) == 2 {
		if percent, err := strconv.ParseFloat(m[1], 64); err == nil {
			return Progress{Percent: percent, Status: "downloading"}, true
		}
	}

	// Case 4: unparsed marker — not a progress line at all.
	return Progress{}, false
}

// normalizeETA pads a bare "7" or "M:SS" ETA into "HH:MM:SS" for hhmmss.Parse.
func normalizeETA(eta string) string {
	parts := strings.Split(eta, ":")
	switch len(parts) {
	case 1:
		return "00:00:" + pad2(parts[0])
	case 2:
		return "00:" + pad2(parts[0]) + ":" + pad2(parts[1])
	default:
		return eta
	}
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

// verifyExecutable is a narrow helper that checks a binary exists and is not
// a directory. No provider in this module calls it.
func verifyExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return apperr.New("ytdlp.verifyExecutable", apperr.MissingDependency, fmt.Sprintf("%s not found", path))
	}
	if info.IsDir() {
		return apperr.New("ytdlp.verifyExecutable", apperr.CorruptedInstallation, fmt.Sprintf("%s is a directory", path))
	}
	return nil
}
