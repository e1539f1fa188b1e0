package ioformats

import (
	"io"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/aurora-lang/aurora/internal/midiemit"
)

// WriteSMF serializes a tempo track and a set of per-patch note/CC tracks
// into a Standard MIDI File (format 1) at midiemit.PPQ ticks per quarter
// note, using the same library the teacher's live-device path already
// depends on but through its smf subpackage instead of the live-IO side.
func WriteSMF(w io.Writer, tempoTrack midiemit.Track, patchTracks []midiemit.Track) error {
	file := smf.New()
	file.TimeFormat = smf.MetricTicks(midiemit.PPQ)

	conductor := smf.Track{}
	conductor.Add(0, smf.MetaTrackSequenceName("tempo"))
	var lastTick uint32
	for _, ev := range tempoTrack.Events {
		delta := ev.Tick - lastTick
		lastTick = ev.Tick
		conductor.Add(delta, smf.MetaTempo(ev.Tempo))
	}
	conductor.Close(0)
	if err := file.Add(conductor); err != nil {
		return err
	}

	for _, pt := range patchTracks {
		track := smf.Track{}
		track.Add(0, smf.MetaTrackSequenceName(pt.Name))
		var last uint32
		for _, ev := range pt.Events {
			delta := ev.Tick - last
			last = ev.Tick
			switch ev.Kind {
			case midiemit.EventNoteOn:
				track.Add(delta, midi.NoteOn(ev.Channel, ev.Note, ev.Velocity))
			case midiemit.EventNoteOff:
				track.Add(delta, midi.NoteOff(ev.Channel, ev.Note))
			case midiemit.EventCC:
				track.Add(delta, midi.ControlChange(ev.Channel, ev.Controller, ev.Value))
			}
		}
		track.Close(0)
		if err := file.Add(track); err != nil {
			return err
		}
	}

	_, err := file.WriteTo(w)
	return err
}
