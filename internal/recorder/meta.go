package recorder

import (
	"fmt"
	"time"

	"github.com/audiolibrelab/gazecapture/internal/artifact"
	"github.com/audiolibrelab/gazecapture/internal/hostinfo"
)

// Attempt file names.
const (
	InfoFile             = "info.csv"
	UserInfoFile         = "user_info.csv"
	PupilDataFile        = "pupil_data"
	GazePositionsFile    = "gaze_positions.arrow"
	PupilPositionsFile   = "pupil_positions.arrow"
	WorldTimestampsFile  = "world_timestamps.arrow"
	SurfaceDefsFile      = "surface_definitions"
	CalibrationFile      = "cal_pt_cloud.arrow"
	CameraMatrixFile     = "camera_matrix.arrow"
	DistortionCoefsFile  = "dist_coefs.arrow"
	PreviousStampFile    = "world_timestamps_previous.arrow"
)

// FormatElapsed renders d as HH:MM:SS.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return time.Time{}.Add(d).Format("15:04:05")
}

// MetaRecord is an ordered list of info.csv entries.
type MetaRecord []artifact.Field

func header(a *Attempt) MetaRecord {
	return MetaRecord{
		{Key: "Recording Name", Value: a.Session.Name},
		{Key: "Start Date", Value: a.Started.Format("02.01.2006")},
		{Key: "Start Time", Value: a.Started.Format("15:04:05")},
		{Key: "Recording UUID", Value: a.ID.String()},
	}
}

type trailer struct {
	Duration  time.Duration
	Binocular bool
	Frames    int
	Width     int
	Height    int
	Version   string
	Host      hostinfo.Info
}

func (t trailer) record() MetaRecord {
	mode := "monocular"
	if t.Binocular {
		mode = "binocular"
	}
	return MetaRecord{
		{Key: "Duration Time", Value: FormatElapsed(t.Duration)},
		{Key: "Eye Mode", Value: mode},
		{Key: "World Camera Frames", Value: fmt.Sprint(t.Frames)},
		{Key: "World Camera Resolution", Value: fmt.Sprintf("%dx%d", t.Width, t.Height)},
		{Key: "Capture Software Version", Value: t.Version},
		{Key: "User", Value: t.Host.User},
		{Key: "Platform", Value: t.Host.System},
		{Key: "Machine", Value: t.Host.Node},
		{Key: "Release", Value: t.Host.Release},
		{Key: "Version", Value: t.Host.Version},
	}
}
