package fields

// Plural picks the Russian plural form for n: forms are for 1, 2-4 and 5+ (одна запись, две записи, пять записей)
func Plural(n int, forms [3]string) string {
	return forms[pluralIndex(n)]
}

func pluralIndex(n int) int {
	if n < 0 {
		n = -n
	}
	switch {
	case n%10 == 1 && n%100 != 11:
		return 0
	case n%10 >= 2 && n%10 <= 4 && (n%100 < 12 || n%100 > 14):
		return 1
	}
	return 2
}

// suffixes maps a word to its three plural forms
var suffixes = map[string][3]string{
	"запись":       {"запись", "записи", "записей"},
	"найдена":      {"найдена", "найдено", "найдено"},
	"файл":         {"файл", "файла", "файлов"},
	"удален":       {"удален", "удалено", "удалено"},
	"обслуживание": {"обслуживание", "обслуживания", "обслуживаний"},
	"символ":       {"символ", "символа", "символов"},
}

// Suffix returns word agreed with n; unknown words are returned as is
func Suffix(word string, n int) string {
	forms, ok := suffixes[word]
	if !ok {
		return word
	}
	return Plural(n, forms)
}
