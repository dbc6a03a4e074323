package model

// AnnotationJob asks the worker to derive text and follow-up questions for a
// freshly saved record.
type AnnotationJob struct {
	RecordID string     `json:"record_id"`
	Kind     RecordKind `json:"kind"`
	UserText string     `json:"user_text,omitempty"`
	MediaURL string     `json:"media_url,omitempty"`
}

// AnnotationJobFor builds the job for a saved record.
func AnnotationJobFor(r Record) AnnotationJob {
	job := AnnotationJob{RecordID: r.Base().ID, Kind: r.Kind()}
	switch rec := r.(type) {
	case *TextRecord:
		job.UserText = rec.UserText
	case *ImageRecord:
		job.UserText = rec.UserText
		job.MediaURL = rec.ImageURL
	case *VoiceRecord:
		job.MediaURL = rec.AudioURL
	}
	return job
}
