package i18n

// Message keys. Arguments are positional and always strings; see T.
const (
	Welcome           = "welcome"
	ChooseLanguage    = "choose_language"
	LanguageSelected  = "language_selected"
	SendLessonText    = "send_lesson_text"
	AskImage          = "ask_image"
	AskDateTime       = "ask_datetime"
	AskTopicID        = "ask_topic_id"
	ConfirmLesson     = "confirm_lesson" // date, time, topic id, preview
	ConfirmPrompt     = "confirm_prompt"
	LessonSaved       = "lesson_saved" // id
	LessonDiscarded   = "lesson_discarded"
	InvalidDateTime   = "invalid_datetime"
	InvalidTopicID    = "invalid_topic_id"
	EmptyText         = "empty_text"
	ExpectImage       = "expect_image"
	NoLessons         = "no_lessons"
	LessonsList       = "lessons_list"
	LessonItem        = "lesson_item" // id, datetime, topic id, preview, relative
	LessonDeleted     = "lesson_deleted"
	LessonNotFound    = "lesson_not_found"
	DeleteUsage       = "delete_usage"
	EditUsage         = "edit_usage"
	ChooseEditField   = "choose_edit_field"
	InvalidEditChoice = "invalid_edit_choice"
	EditText          = "edit_text"
	EditDateTime      = "edit_datetime"
	EditTopic         = "edit_topic"
	EditImage         = "edit_image"
	LessonUpdated     = "lesson_updated"
	ExportData        = "export_data" // count
	HelpText          = "help_text"   // timezone
	Cancel            = "cancel"
	NothingToCancel   = "nothing_to_cancel"
	SaveFailed        = "save_failed"
	UnknownCommand    = "unknown_command"
	InternalError     = "internal_error"

	BtnSave    = "btn_save"
	BtnDiscard = "btn_discard"
)
