package i18n

var english = map[string]string{
	Welcome:           "🎓 Welcome to Study Group Bot!\n🎓 أهلاً بك في بوت مجموعة الدراسة!\n\nPlease choose your language / الرجاء اختيار لغتك:",
	ChooseLanguage:    "Choose your language:",
	LanguageSelected:  "🇬🇧 Language set to English!",
	SendLessonText:    "📝 Please send the lesson text:",
	AskImage:          "📷 Do you want to attach an image?\n\n✅ Yes - Send the image now\n❌ No - Type \"skip\"",
	AskDateTime:       "⏰ When should I post this lesson?\n\nFormat: YYYY-MM-DD HH:MM\nExample: 2025-07-01 08:00",
	AskTopicID:        "📌 What is the topic ID (thread ID) where I should post this lesson?",
	ConfirmLesson:     "🗓 Lesson preview\n\n📅 Date: %[1]s\n🕐 Time: %[2]s\n📍 Topic ID: %[3]s\n\n📝 Preview:\n%[4]s",
	ConfirmPrompt:     "Save this lesson? Reply \"yes\" or \"no\", or use the buttons.",
	LessonSaved:       "💾 Lesson saved successfully! ID: %[1]s",
	LessonDiscarded:   "🗑️ Lesson discarded.",
	InvalidDateTime:   "❌ Invalid date/time format. Please use: YYYY-MM-DD HH:MM",
	InvalidTopicID:    "❌ Topic ID must be a number.",
	EmptyText:         "❌ The lesson text cannot be empty.",
	ExpectImage:       "📷 Send an image, or type \"skip\".",
	NoLessons:         "📭 No scheduled lessons found.",
	LessonsList:       "📚 Scheduled Lessons:\n\n",
	LessonItem:        "🔹 ID: %[1]s\n📅 %[2]s (%[5]s)\n📍 Topic: %[3]s\n📝 %[4]s...\n\n",
	LessonDeleted:     "🗑️ Lesson deleted successfully!",
	LessonNotFound:    "❌ Lesson not found.",
	DeleteUsage:       "Usage: /deletelesson <id>",
	EditUsage:         "Usage: /editlesson <id>",
	ChooseEditField:   "✏️ What would you like to edit?\n\n1️⃣ Text\n2️⃣ Date/Time\n3️⃣ Topic ID\n4️⃣ Image",
	InvalidEditChoice: "❌ Please reply with 1, 2, 3 or 4.",
	EditText:          "📝 Send the new lesson text:",
	EditDateTime:      "⏰ Send the new date and time (YYYY-MM-DD HH:MM):",
	EditTopic:         "📌 Send the new topic ID:",
	EditImage:         "📷 Send the new image or type \"remove\" to remove current image:",
	LessonUpdated:     "✅ Lesson updated successfully!",
	ExportData:        "💾 Here's your backup data (%[1]s lessons):",
	HelpText: `🤖 Study Group Bot Commands:

📚 Lesson Management:
/addlesson - Add a new scheduled lesson
/listlessons - View all scheduled lessons
/deletelesson <id> - Delete a lesson
/editlesson <id> - Edit a lesson
/export - Export all lessons as backup

⚙️ Settings:
/language - Change language
/cancel - Cancel the current operation
/help - Show this help

🕐 Time Format: YYYY-MM-DD HH:MM (%[1]s)
📍 Topic ID: The thread ID from your group`,
	Cancel:          "Operation cancelled.",
	NothingToCancel: "Nothing to cancel.",
	SaveFailed:      "⚠️ The change is active but could not be written to disk.",
	UnknownCommand:  "Unknown command. Type /help.",
	InternalError:   "⚠️ Something went wrong. Please try again.",

	BtnSave:    "✅ Save",
	BtnDiscard: "❌ Discard",
}

var arabic = map[string]string{
	Welcome:           "🎓 Welcome to Study Group Bot!\n🎓 أهلاً بك في بوت مجموعة الدراسة!\n\nPlease choose your language / الرجاء اختيار لغتك:",
	ChooseLanguage:    "اختر لغتك:",
	LanguageSelected:  "🇸🇦 تم تعيين اللغة إلى العربية!",
	SendLessonText:    "📝 الرجاء إرسال محتوى الدرس:",
	AskImage:          "📷 هل تريد إرفاق صورة؟\n\n✅ نعم - أرسل الصورة الآن\n❌ لا - اكتب \"تخطي\"",
	AskDateTime:       "⏰ متى يجب أن أنشر هذا الدرس؟\n\nالصيغة: YYYY-MM-DD HH:MM\nمثال: 2025-07-01 08:00",
	AskTopicID:        "📌 ما هو معرف الموضوع (معرف المحادثة) الذي يجب أن أنشر فيه هذا الدرس؟",
	ConfirmLesson:     "🗓 معاينة الدرس\n\n📅 التاريخ: %[1]s\n🕐 الوقت: %[2]s\n📍 معرف الموضوع: %[3]s\n\n📝 معاينة:\n%[4]s",
	ConfirmPrompt:     "هل تريد حفظ هذا الدرس؟ أجب بـ \"نعم\" أو \"لا\"، أو استخدم الأزرار.",
	LessonSaved:       "💾 تم حفظ الدرس بنجاح! المعرف: %[1]s",
	LessonDiscarded:   "🗑️ تم تجاهل الدرس.",
	InvalidDateTime:   "❌ صيغة التاريخ والوقت غير صحيحة. الرجاء استخدام: YYYY-MM-DD HH:MM",
	InvalidTopicID:    "❌ معرف الموضوع يجب أن يكون رقماً.",
	EmptyText:         "❌ لا يمكن أن يكون نص الدرس فارغاً.",
	ExpectImage:       "📷 أرسل صورة، أو اكتب \"تخطي\".",
	NoLessons:         "📭 لا توجد دروس مجدولة.",
	LessonsList:       "📚 الدروس المجدولة:\n\n",
	LessonItem:        "🔹 المعرف: %[1]s\n📅 %[2]s (%[5]s)\n📍 الموضوع: %[3]s\n📝 %[4]s...\n\n",
	LessonDeleted:     "🗑️ تم حذف الدرس بنجاح!",
	LessonNotFound:    "❌ الدرس غير موجود.",
	DeleteUsage:       "الاستخدام: /deletelesson <id>",
	EditUsage:         "الاستخدام: /editlesson <id>",
	ChooseEditField:   "✏️ ماذا تريد أن تعدل؟\n\n1️⃣ النص\n2️⃣ التاريخ والوقت\n3️⃣ معرف الموضوع\n4️⃣ الصورة",
	InvalidEditChoice: "❌ الرجاء الرد بـ 1 أو 2 أو 3 أو 4.",
	EditText:          "📝 أرسل النص الجديد للدرس:",
	EditDateTime:      "⏰ أرسل التاريخ والوقت الجديد (YYYY-MM-DD HH:MM):",
	EditTopic:         "📌 أرسل معرف الموضوع الجديد:",
	EditImage:         "📷 أرسل الصورة الجديدة أو اكتب \"إزالة\" لحذف الصورة الحالية:",
	LessonUpdated:     "✅ تم تحديث الدرس بنجاح!",
	ExportData:        "💾 إليك بيانات النسخ الاحتياطي (%[1]s دروس):",
	HelpText: `🤖 أوامر بوت مجموعة الدراسة:

📚 إدارة الدروس:
/addlesson - إضافة درس مجدول جديد
/listlessons - عرض جميع الدروس المجدولة
/deletelesson <id> - حذف درس
/editlesson <id> - تعديل درس
/export - تصدير جميع الدروس كنسخة احتياطية

⚙️ الإعدادات:
/language - تغيير اللغة
/cancel - إلغاء العملية الحالية
/help - عرض هذه المساعدة

🕐 صيغة الوقت: YYYY-MM-DD HH:MM (%[1]s)
📍 معرف الموضوع: معرف المحادثة من مجموعتك`,
	Cancel:          "تم إلغاء العملية.",
	NothingToCancel: "لا توجد عملية لإلغائها.",
	SaveFailed:      "⚠️ التغيير فعال لكن تعذر حفظه على القرص.",
	UnknownCommand:  "أمر غير معروف. اكتب /help.",
	InternalError:   "⚠️ حدث خطأ ما. الرجاء المحاولة مرة أخرى.",

	BtnSave:    "✅ حفظ",
	BtnDiscard: "❌ تجاهل",
}
