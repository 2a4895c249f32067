package enrollment

import (
	"fmt"

	"fpconsole/internal/render"
)

// Render projects an attempt onto the status box shown under the enroll form.
func Render(a Attempt) render.Alert {
	switch a.State {
	case Submitted:
		return render.New(render.Info, "Initiating fingerprint enrollment... Please place finger on the sensor.")
	case Pending, AwaitingFirstScan, AwaitingSecondScan:
		lines := make([]string, 0, 4)
		if a.Message != "" {
			lines = append(lines, a.Message)
		}
		if a.StudentName != "" {
			lines = append(lines, "Student: "+a.StudentName)
		}
		lines = append(lines, fmt.Sprintf("Fingerprint ID: %d", a.FingerprintID))
		switch a.State {
		case AwaitingFirstScan:
			lines = append(lines, "Place your finger on the sensor.")
		case AwaitingSecondScan:
			lines = append(lines, "First scan complete. Place the same finger on the sensor again.")
		}
		return render.New(render.Info, lines...)
	case Succeeded:
		lines := []string{"Fingerprint enrolled successfully!"}
		if a.StudentName != "" {
			lines = append(lines, "Student: "+a.StudentName)
		}
		lines = append(lines, fmt.Sprintf("Fingerprint ID: %d", a.FingerprintID))
		return render.New(render.Success, lines...)
	case Failed:
		return render.New(render.Danger, "Failed to enroll fingerprint: "+a.Error)
	}
	return render.Alert{}
}
