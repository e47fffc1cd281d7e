// Package permissions reports the macOS privacy permissions EzClassify
// depends on: the microphone for every capture and accessibility for the
// global live toggle hotkey.
package permissions

/*
#cgo CFLAGS: -x objective-c -fmodules
#cgo LDFLAGS: -framework AVFoundation -framework ApplicationServices

#import <AVFoundation/AVFoundation.h>
#import <ApplicationServices/ApplicationServices.h>

int check_microphone_permission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

int check_accessibility_permission() {
    Boolean isAccessibilityEnabled = AXIsProcessTrusted();
    return isAccessibilityEnabled ? 1 : 0;
}
*/
import "C"

import (
	"fmt"
	"os/exec"
	"strings"
)

// Status mirrors AVAuthorizationStatus
type Status int

const (
	// NotDetermined means the user hasn't been asked yet
	NotDetermined Status = 0
	// Restricted means the permission is restricted by device management
	Restricted Status = 1
	// Denied means the user has explicitly denied the permission
	Denied Status = 2
	// Authorized means the user has authorized the permission
	Authorized Status = 3
)

func (s Status) String() string {
	switch s {
	case NotDetermined:
		return "NotDetermined"
	case Restricted:
		return "Restricted"
	case Denied:
		return "Denied"
	case Authorized:
		return "Authorized"
	default:
		return "Unknown"
	}
}

// Usable reports whether capture may proceed. NotDetermined counts as usable
// because opening the device is what makes macOS ask the user.
func (s Status) Usable() bool {
	return s == Authorized || s == NotDetermined
}

// Checker queries the system
type Checker interface {
	Microphone() Status
	Accessibility() Status
}

type systemChecker struct{}

// System returns the Checker backed by AVFoundation and ApplicationServices
func System() Checker {
	return systemChecker{}
}

func (systemChecker) Microphone() Status {
	return Status(C.check_microphone_permission())
}

func (systemChecker) Accessibility() Status {
	if C.check_accessibility_permission() == 1 {
		return Authorized
	}
	return Denied
}

// Report is a snapshot of both permissions
type Report struct {
	Microphone    Status
	Accessibility Status
}

// Check builds a report from c
func Check(c Checker) Report {
	return Report{
		Microphone:    c.Microphone(),
		Accessibility: c.Accessibility(),
	}
}

// Missing lists the permissions that block the requested features
func (r Report) Missing(needMicrophone, needAccessibility bool) []string {
	var missing []string
	if needMicrophone && !r.Microphone.Usable() {
		missing = append(missing, "Microphone")
	}
	if needAccessibility && r.Accessibility != Authorized {
		missing = append(missing, "Accessibility")
	}
	return missing
}

// Error returns a user-facing error for the missing permissions, or nil
func (r Report) Error(needMicrophone, needAccessibility bool) error {
	missing := r.Missing(needMicrophone, needAccessibility)
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("missing macOS permission: %s (System Settings > Privacy & Security)",
		strings.Join(missing, ", "))
}

// OpenMicrophoneSettings opens the microphone privacy pane
func OpenMicrophoneSettings() error {
	return exec.Command("open", "x-apple.systempreferences:com.apple.preference.security?Privacy_Microphone").Run()
}

// OpenAccessibilitySettings opens the accessibility privacy pane
func OpenAccessibilitySettings() error {
	return exec.Command("open", "x-apple.systempreferences:com.apple.preference.security?Privacy_Accessibility").Run()
}
