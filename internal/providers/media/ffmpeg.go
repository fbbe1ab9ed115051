// Package media shells out to ffmpeg/ffprobe for probing, clip extraction,
// normalization and concatenation.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"hookforge/internal/domain"
)

// Meta describes the video properties the pipeline normalizes against.
type Meta struct {
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	FPS      float64 `json:"fps"`
	Duration float64 `json:"duration"`
	HasAudio bool    `json:"has_audio"`
}

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// FFmpeg runs the ffmpeg and ffprobe binaries. All outputs are re-encoded
// to a uniform H.264/AAC profile so the concat demuxer can join them
// without stream copy surprises.
type FFmpeg struct {
	ffmpegBin  string
	ffprobeBin string
	run        runFunc
}

type Options struct {
	FFmpegBin  string
	FFprobeBin string
}

func New(opts Options) *FFmpeg {
	ffmpegBin := opts.FFmpegBin
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	ffprobeBin := opts.FFprobeBin
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	f := &FFmpeg{ffmpegBin: ffmpegBin, ffprobeBin: ffprobeBin}
	f.run = f.execRun
	return f
}

func (f *FFmpeg) execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, domain.Permanent(fmt.Errorf(
			"%s %s: %w: %s", name, strings.Join(args, " "), err, truncate(stderr.String(), 500)))
	}
	return out, nil
}

// Available reports whether the ffmpeg binary responds.
func (f *FFmpeg) Available(ctx context.Context) bool {
	_, err := f.run(ctx, f.ffmpegBin, "-version")
	return err == nil
}

// ProbeAvailable reports whether the ffprobe binary responds.
func (f *FFmpeg) ProbeAvailable(ctx context.Context) bool {
	_, err := f.run(ctx, f.ffprobeBin, "-version")
	return err == nil
}

type probePayload struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads stream metadata for the video at path.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Meta, error) {
	out, err := f.run(ctx, f.ffprobeBin,
		"-v", "error", "-show_streams", "-show_format", "-of", "json", path)
	if err != nil {
		return Meta{}, err
	}

	var payload probePayload
	if err := json.Unmarshal(out, &payload); err != nil {
		return Meta{}, domain.Permanent(fmt.Errorf("probe output is not json: %w", err))
	}

	meta := Meta{Width: 1080, Height: 1920, FPS: 30}
	var haveVideo bool
	for _, stream := range payload.Streams {
		switch stream.CodecType {
		case "video":
			if haveVideo {
				continue
			}
			haveVideo = true
			if stream.Width > 0 {
				meta.Width = stream.Width
			}
			if stream.Height > 0 {
				meta.Height = stream.Height
			}
			rate := stream.AvgFrameRate
			if rate == "" || rate == "0/0" {
				rate = stream.RFrameRate
			}
			meta.FPS = maxFloat(fpsValue(rate), 1)
			if d, err := strconv.ParseFloat(stream.Duration, 64); err == nil {
				meta.Duration = d
			}
		case "audio":
			meta.HasAudio = true
		}
	}
	if !haveVideo {
		return Meta{}, domain.Permanent(fmt.Errorf("no video stream found in %s", path))
	}
	if meta.Duration == 0 {
		if d, err := strconv.ParseFloat(payload.Format.Duration, 64); err == nil {
			meta.Duration = d
		}
	}
	return meta, nil
}

// ExtractClipWAV writes the first clipSeconds of audio as mono 16 kHz PCM,
// the input format the speech service expects.
func (f *FFmpeg) ExtractClipWAV(ctx context.Context, sourceVideo string, clipSeconds int, wavOutput string) error {
	if err := ensureDir(wavOutput); err != nil {
		return err
	}
	_, err := f.run(ctx, f.ffmpegBin,
		"-y", "-i", sourceVideo,
		"-t", strconv.Itoa(max(1, clipSeconds)),
		"-ac", "1", "-ar", "16000", "-vn", "-c:a", "pcm_s16le",
		wavOutput)
	return err
}

func scalePadFilter(width, height int, fps float64) string {
	return fmt.Sprintf(
		"scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%.3f",
		width, height, width, height, fps)
}

// NormalizeSource re-encodes the source video to the target geometry with a
// uniform audio layout.
func (f *FFmpeg) NormalizeSource(ctx context.Context, sourceVideo string, target Meta, outputVideo string) error {
	if err := ensureDir(outputVideo); err != nil {
		return err
	}
	_, err := f.run(ctx, f.ffmpegBin,
		"-y", "-i", sourceVideo,
		"-vf", scalePadFilter(target.Width, target.Height, target.FPS),
		"-c:v", "libx264", "-preset", "medium", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-ac", "2", "-ar", "48000",
		"-movflags", "+faststart",
		outputVideo)
	return err
}

// NormalizeHook aligns the generated hook to the target geometry, exact
// duration and audio layout. Hooks without an audio stream get a synthetic
// silent track; hooks shorter than hookSeconds are padded by cloning the
// last frame. Returns whether the silence fallback was applied.
func (f *FFmpeg) NormalizeHook(ctx context.Context, hookVideoRaw string, target Meta, hookSeconds int, outputVideo string) (bool, error) {
	if err := ensureDir(outputVideo); err != nil {
		return false, err
	}
	aligned := filepath.Join(filepath.Dir(outputVideo), "hook_video_aligned.mp4")
	rawMeta, err := f.Probe(ctx, hookVideoRaw)
	if err != nil {
		return false, err
	}
	filter := scalePadFilter(target.Width, target.Height, target.FPS)

	silence := !rawMeta.HasAudio
	if silence {
		_, err = f.run(ctx, f.ffmpegBin,
			"-y", "-i", hookVideoRaw,
			"-f", "lavfi", "-i", "anullsrc=channel_layout=stereo:sample_rate=48000",
			"-vf", filter,
			"-c:v", "libx264", "-preset", "medium", "-pix_fmt", "yuv420p",
			"-c:a", "aac", "-shortest",
			aligned)
	} else {
		_, err = f.run(ctx, f.ffmpegBin,
			"-y", "-i", hookVideoRaw,
			"-vf", filter,
			"-c:v", "libx264", "-preset", "medium", "-pix_fmt", "yuv420p",
			"-c:a", "aac", "-ac", "2", "-ar", "48000",
			aligned)
	}
	if err != nil {
		return silence, err
	}

	alignedMeta, err := f.Probe(ctx, aligned)
	if err != nil {
		return silence, err
	}
	targetSeconds := max(1, hookSeconds)

	if alignedMeta.Duration >= float64(targetSeconds) {
		_, err = f.run(ctx, f.ffmpegBin,
			"-y", "-i", aligned,
			"-t", strconv.Itoa(targetSeconds),
			"-c:v", "libx264", "-preset", "medium", "-pix_fmt", "yuv420p",
			"-c:a", "aac", "-ac", "2", "-ar", "48000",
			outputVideo)
		return silence, err
	}

	padSeconds := float64(targetSeconds) - alignedMeta.Duration
	_, err = f.run(ctx, f.ffmpegBin,
		"-y", "-i", aligned,
		"-vf", fmt.Sprintf("tpad=stop_mode=clone:stop_duration=%.3f", padSeconds),
		"-af", fmt.Sprintf("apad=pad_dur=%.3f", padSeconds),
		"-t", strconv.Itoa(targetSeconds),
		"-c:v", "libx264", "-preset", "medium", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-ac", "2", "-ar", "48000",
		outputVideo)
	return silence, err
}

// Concat joins the normalized hook and source with the concat demuxer.
func (f *FFmpeg) Concat(ctx context.Context, hookVideo, sourceVideo, outputVideo string) error {
	if err := ensureDir(outputVideo); err != nil {
		return err
	}
	listPath := filepath.Join(filepath.Dir(outputVideo), "concat_list.txt")
	list := fmt.Sprintf("file '%s'\nfile '%s'\n",
		filepath.ToSlash(hookVideo), filepath.ToSlash(sourceVideo))
	if err := os.WriteFile(listPath, []byte(list), 0o644); err != nil {
		return domain.Permanent(fmt.Errorf("write concat list: %w", err))
	}

	_, err := f.run(ctx, f.ffmpegBin,
		"-y", "-f", "concat", "-safe", "0", "-i", listPath,
		"-c:v", "libx264", "-preset", "medium", "-pix_fmt", "yuv420p",
		"-c:a", "aac", "-ac", "2", "-ar", "48000",
		"-movflags", "+faststart",
		outputVideo)
	return err
}

func fpsValue(rate string) float64 {
	if rate == "" {
		return 30
	}
	if num, den, ok := strings.Cut(rate, "/"); ok {
		n, errN := strconv.ParseFloat(num, 64)
		d, errD := strconv.ParseFloat(den, 64)
		if errN != nil || errD != nil || d == 0 {
			return 30
		}
		return n / d
	}
	if v, err := strconv.ParseFloat(rate, 64); err == nil {
		return v
	}
	return 30
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return domain.Permanent(fmt.Errorf("ensure output directory: %w", err))
	}
	return nil
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}
