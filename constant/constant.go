package constant

type ImportState string

const (
	ImportStateUploaded     ImportState = "uploaded"
	ImportStateTranscribing ImportState = "transcribing"
	ImportStateTranscribed  ImportState = "transcribed"
	ImportStateProcessed    ImportState = "processed"
	ImportStateUsed         ImportState = "used"
	ImportStateError        ImportState = "error"
)

func (s ImportState) String() string {
	return string(s)
}

// TranscribableStates are the states a record may leave through a transcription run.
var TranscribableStates = []ImportState{ImportStateUploaded, ImportStateError}

type BookStatus string

const (
	BookStatusDraft      BookStatus = "draft"
	BookStatusInProgress BookStatus = "in_progress"
	BookStatusCompleted  BookStatus = "completed"
	BookStatusPublished  BookStatus = "published"
)

type SectionStatus string

const (
	SectionStatusDraft      SectionStatus = "draft"
	SectionStatusInProgress SectionStatus = "in_progress"
	SectionStatusCompleted  SectionStatus = "completed"
)

type StorageDriver string

const (
	StorageDriverMinIO StorageDriver = "minio"
	StorageDriverS3    StorageDriver = "s3"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}
