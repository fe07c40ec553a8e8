package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/brainwash-synth/brainwash"
	"github.com/brainwash-synth/brainwash/track"
	"github.com/brainwash-synth/brainwash/tracker"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	renderOut   string
	renderLoops int
	renderPCM   bool

	fmtStdout bool

	renderCmd = &cobra.Command{
		Use:   "render file.bw",
		Short: "Render loops of a patch to a .wav or .raw file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRender,
	}

	checkCmd = &cobra.Command{
		Use:   "check file.bw...",
		Short: "Check that patches parse and compile",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCheck,
	}

	fmtCmd = &cobra.Command{
		Use:   "fmt file.bw...",
		Short: "Rewrite patches in the canonical .bw form",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFmt,
	}

	exportCmd = &cobra.Command{
		Use:   "export file.bw",
		Short: "Print a patch as YAML",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
)

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "output", "o", "", "output file; .raw gives raw samples (default is the input with .wav)")
	renderCmd.Flags().IntVar(&renderLoops, "loops", 1, "how many times to play the loop")
	renderCmd.Flags().BoolVar(&renderPCM, "pcm16", false, "write 16-bit integer samples instead of float")
	fmtCmd.Flags().BoolVarP(&fmtStdout, "stdout", "s", false, "write to standard output instead of the files")
}

func runRender(cmd *cobra.Command, args []string) error {
	p, err := readPatch(args[0])
	if err != nil {
		return err
	}
	out := renderOut
	if out == "" {
		out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".wav"
	}
	buf, err := tracker.RenderLoops(&p, cfg.SynthOptions(), renderLoops)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	var data []byte
	if filepath.Ext(out) == ".raw" {
		data, err = buf.Raw(renderPCM)
	} else {
		data, err = buf.Wav(renderPCM)
	}
	if err != nil {
		return err
	}
	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("could not create output directory %v: %w", dir, err)
		}
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("could not write file %v: %w", out, err)
	}
	logger.Info("rendered", "file", out, "loops", renderLoops, "seconds", float64(len(buf))/brainwash.SampleRate)
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	failed := 0
	for _, path := range args {
		if err := check(cmd, path); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d patches failed", failed, len(args))
	}
	return nil
}

func check(cmd *cobra.Command, path string) error {
	p, err := readPatch(path)
	if err != nil {
		return err
	}
	b, err := tracker.Compile(&p, cfg.SynthOptions())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d modules, %d notes in %d layers, loop of %.3f s\n",
		path, len(p.Modules), len(b.Events), b.Snapshot.Layers, float64(b.Snapshot.Length)/brainwash.SampleRate)
	for _, r := range b.Rejected {
		fmt.Fprintf(out, "%s: ignored: %v\n", path, r.Error())
	}
	return nil
}

func runFmt(cmd *cobra.Command, args []string) error {
	for _, path := range args {
		p, err := readPatch(path)
		if err != nil {
			return err
		}
		if strings.TrimSpace(p.Track) != "" {
			t, err := track.Parse(p.Track)
			if err != nil {
				return fmt.Errorf("%s: track: %w", path, err)
			}
			p.Track = t.String()
		}
		var buf bytes.Buffer
		if err := p.Write(&buf); err != nil {
			return err
		}
		if fmtStdout {
			cmd.OutOrStdout().Write(buf.Bytes())
			continue
		}
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("could not write file %v: %w", path, err)
		}
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	p, err := readPatch(args[0])
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(&p); err != nil {
		return err
	}
	return enc.Close()
}
