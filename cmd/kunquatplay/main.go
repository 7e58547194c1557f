// Command kunquatplay is the reference host driver for the render core:
// it stands in for "the host calls it to fill a block" (spec.md §1) the
// way the teacher's main.go stood in for the tracker editor, but as a
// cobra subcommand CLI (cobra is the teacher's own declared dependency,
// unused by its flag-based main.go) instead of a bubbletea full-screen
// app.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/spf13/cobra"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kagu/kunquat/internal/device"
	"github.com/kagu/kunquat/internal/kunquat"
	"github.com/kagu/kunquat/internal/midirelay"
	"github.com/kagu/kunquat/internal/oscremote"
	"github.com/kagu/kunquat/internal/position"
	"github.com/kagu/kunquat/internal/processor"
	"github.com/kagu/kunquat/internal/progressui"
	"github.com/kagu/kunquat/internal/tstamp"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kunquatplay",
		Short: "Reference host driver for the kunquat render core",
	}
	root.AddCommand(renderCmd(), oscCmd(), midiCmd())
	return root
}

// demoHandle builds spec.md §8 Scenario D's composition: a debug
// instrument at AU 0 wired through a chorus effect at AU 1 into the
// master, channel 0 bound to AU 0. chorusVolume == 0 makes the chorus an
// identity pass-through (Scenario D); a nonzero value exercises the real
// effect.
func demoHandle(rate, bufferSize, voices int, chorusVolume float64) (*kunquat.Handle, error) {
	h, err := kunquat.NewHandle(rate, bufferSize, voices)
	if err != nil {
		return nil, err
	}

	shared := &device.Shared{SampleRate: rate, BufferSize: bufferSize, TempoBPM: 120}
	bufs := h.Player.Bufs
	debug := processor.NewDebug(0, shared, bufs)
	if err := h.SetInstrument(0, nil, []device.Processor{debug}); err != nil {
		return nil, err
	}

	chorus := processor.NewChorus(1, shared, bufs, processor.ChorusParams{Volume: chorusVolume})
	mixedProcs := map[int]device.Processor{1: chorus}
	cons := []device.Connection{
		{SrcDevice: 0, SrcPort: 0, DstDevice: 1, DstPort: 0},
		{SrcDevice: 0, SrcPort: 1, DstDevice: 1, DstPort: 1},
		{SrcDevice: 1, SrcPort: 0, DstDevice: device.MasterID, DstPort: 0},
		{SrcDevice: 1, SrcPort: 1, DstDevice: device.MasterID, DstPort: 1},
	}
	if err := h.SetMixedGraph(cons, mixedProcs); err != nil {
		return nil, err
	}
	if err := h.BindChannel(0, 0); err != nil {
		return nil, err
	}
	if err := h.Validate(nil); err != nil {
		return nil, err
	}
	// A single 1000-beat pattern with no triggers keeps the cursor
	// quiescent; the render command fires note-on explicitly instead of
	// scheduling it in a pattern.
	h.SetTracks([]*position.Track{{Systems: []*position.System{{Instances: []*position.PatternInstance{
		{Length: tstamp.New(1000, 0)},
	}}}}})
	return h, nil
}

func renderCmd() *cobra.Command {
	var rate, bufferSize, voices, frames int
	var chorusVolume float64
	var out string
	var showUI bool

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Fire a demo note and render it to a WAV file",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := demoHandle(rate, bufferSize, voices, chorusVolume)
			if err != nil {
				return err
			}
			if err := h.Fire(0, `["n+",55.0]`); err != nil {
				return err
			}

			var progCh chan progressui.Snapshot
			if showUI {
				m := progressui.New()
				p := tea.NewProgram(m)
				progCh = make(chan progressui.Snapshot, 16)
				go func() {
					for snap := range progCh {
						p.Send(progressui.ProgressMsg(snap))
					}
					p.Send(progressui.DoneMsg{})
				}()
				go func() {
					if _, err := p.Run(); err != nil {
						log.Printf("progressui: %v", err)
					}
				}()
			}

			const blockSize = 256
			samples := make([]int, 0, frames*2)
			rendered := 0
			for rendered < frames {
				n := blockSize
				if rendered+n > frames {
					n = frames - rendered
				}
				block := h.Play(n)
				for _, f := range block {
					samples = append(samples, int(f*32767))
				}
				rendered += n
				if progCh != nil {
					progCh <- progressui.Snapshot{FramesRendered: rendered, FramesTotal: frames, DroppedNotes: h.DroppedNotes()}
				}
			}
			if progCh != nil {
				close(progCh)
			}

			f, err := os.Create(out)
			if err != nil {
				return err
			}
			defer f.Close()
			enc := wav.NewEncoder(f, rate, 16, 2, 1)
			buf := &audio.IntBuffer{
				Format:         &audio.Format{NumChannels: 2, SampleRate: rate},
				Data:           samples,
				SourceBitDepth: 16,
			}
			if err := enc.Write(buf); err != nil {
				return err
			}
			if err := enc.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d frames to %s (%d dropped notes)\n", frames, out, h.DroppedNotes())
			return nil
		},
	}
	cmd.Flags().IntVar(&rate, "rate", 220, "audio sample rate")
	cmd.Flags().IntVar(&bufferSize, "buffer", 256, "host block size")
	cmd.Flags().IntVar(&voices, "voices", 4, "voice pool capacity")
	cmd.Flags().IntVar(&frames, "frames", 128, "frames to render")
	cmd.Flags().Float64Var(&chorusVolume, "chorus-volume", 0, "chorus wet mix, 0 = identity (Scenario D)")
	cmd.Flags().StringVar(&out, "out", "kunquat-out.wav", "output WAV path")
	cmd.Flags().BoolVar(&showUI, "ui", false, "show a live progress view while rendering")
	return cmd
}

func oscCmd() *cobra.Command {
	var addr string
	var rate, bufferSize, voices int
	cmd := &cobra.Command{
		Use:   "osc-serve",
		Short: "Relay an OSC event control surface into a render handle",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := demoHandle(rate, bufferSize, voices, 0)
			if err != nil {
				return err
			}
			srv := oscremote.NewServer(addr, h)
			return srv.ListenAndServe()
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9000", "OSC listen address")
	cmd.Flags().IntVar(&rate, "rate", 48000, "audio sample rate")
	cmd.Flags().IntVar(&bufferSize, "buffer", 256, "host block size")
	cmd.Flags().IntVar(&voices, "voices", 32, "voice pool capacity")
	return cmd
}

func midiCmd() *cobra.Command {
	var port string
	var channel, rate, bufferSize, voices int
	cmd := &cobra.Command{
		Use:   "midi-relay",
		Short: "Relay a real MIDI input port into a render handle",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				devices := midirelay.Devices()
				if len(devices) == 0 {
					return fmt.Errorf("no MIDI input devices found")
				}
				port = devices[0]
			}
			h, err := demoHandle(rate, bufferSize, voices, 0)
			if err != nil {
				return err
			}
			relay := &midirelay.Relay{Handle: h, Channel: channel}
			if err := relay.Open(port); err != nil {
				return err
			}
			defer relay.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "relaying %q to channel %d; press enter to stop\n", port, channel)
			fmt.Scanln()
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", "", "MIDI input port name (defaults to the first available)")
	cmd.Flags().IntVar(&channel, "channel", 0, "handle channel to target")
	cmd.Flags().IntVar(&rate, "rate", 48000, "audio sample rate")
	cmd.Flags().IntVar(&bufferSize, "buffer", 256, "host block size")
	cmd.Flags().IntVar(&voices, "voices", 32, "voice pool capacity")
	return cmd
}
