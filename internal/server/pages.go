package server

import "github.com/TobiSchelling/covidboard/internal/chart"

// Figure is one chart on a page. An empty Table means the main table.
type Figure struct {
	Table  string
	Params chart.Params
}

// Page is one dashboard section.
type Page struct {
	Slug        string
	Title       string
	Description string // markdown
	Figures     []Figure
}

func line(title string, cols ...string) Figure {
	return Figure{Params: chart.Params{Title: title, Mark: chart.Line, Columns: cols}}
}

func area(title string, cols ...string) Figure {
	return Figure{Params: chart.Params{Title: title, Mark: chart.Area, Columns: cols}}
}

func point(title string, cols ...string) Figure {
	return Figure{Params: chart.Params{Title: title, Mark: chart.Point, Columns: cols}}
}

func from(table string, f Figure) Figure {
	f.Table = table
	return f
}

// Pages lists the dashboard sections in menu order.
var Pages = []Page{
	{
		Slug:  "intro",
		Title: "Введение",
		Description: `Проект работает с открытыми данными из официальных источников. Данные обновляются в конце дня.

Визуализации не претендуют на точность и не отражают истинную картину распространения covid-19
в Калининградской области. Данные агрегированы с образовательной целью.`,
	},
	{
		Slug:  "cases",
		Title: "Динамика заражения",
		Figures: []Figure{
			line("Выявлено", "всего", "ОРВИ", "пневмония", "без симптомов"),
			area("Выявлено по симптомам", "ОРВИ", "пневмония", "без симптомов"),
			line("Количество случаев нарастающим итогом", "кумул. случаи"),
			from("invitro", line("Кейсы в Invitro", "positive")),
			from("invitro", line("Кейсы в Invitro нарастающим итогом", "positivecum")),
		},
	},
	{
		Slug:  "infection-rate",
		Title: "Infection Rate",
		Description: `IR4 считается как отношение числа заболевших за последние 4 дня к числу заболевших
за предыдущие 4 дня.`,
		Figures: []Figure{
			line("Infection Rate 4 days", "infection rate"),
			line("Infection Rate 7 days", "IR7"),
			line("Отношение дней с IR4 >= 1 к дням с IR4 < 1", "отношение"),
		},
	},
	{
		Slug:  "deaths",
		Title: "Данные об умерших",
		Figures: []Figure{
			area("Умерли от ковид", "умерли от ковид"),
			line("Смертельные случаи нарастающим итогом", "кумул.умерли"),
			from("rosstat", Figure{Params: chart.Params{Title: "Данные Росстата о смертности", Mark: chart.Bar, Columns: []string{"умерло"}}}),
		},
	},
	{
		Slug:        "exits",
		Title:       "Данные о выписке",
		Description: "Нет достоверной информации о том, что лечение выписанных в действительности закончено.",
		Figures: []Figure{
			line("Выписаны", "всего", "выписали"),
			line("Выписаны нарастающим итогом", "кумул. случаи", "кумул.выписаны"),
			line("Активные случаи нарастающим итогом", "кумул.активные"),
		},
	},
	{
		Slug:        "tests",
		Title:       "Тестирование",
		Description: "Для наглядности количество тестов разделено на 10.",
		Figures: []Figure{
			line("Общее количество тестов", "кол-во тестов"),
			line("Тестирование и распространение болезни", "ОРВИ", "пневмония", "без симптомов", "кол-во тестов / 10"),
			line("Тестирование и выписка", "выписали", "кол-во тестов / 10"),
			from("invitro", line("Тесты в Invitro", "positive", "negative")),
			from("invitro", point("% положительных тестов в Invitro", "shape")),
		},
	},
	{
		Slug:  "vaccination",
		Title: "Вакцинация",
		Figures: []Figure{
			area("Поступление вакцин", "поступило доз вакцин"),
			point("Использовано вакцин", "компонент 1", "компонент 2"),
		},
	},
	{
		Slug:  "regions",
		Title: "Регионы",
		Figures: []Figure{
			area("Калининград и регионы", "Калининград", "все кроме Калининграда"),
			{Params: chart.Params{Title: "Выявлено за две недели", Mark: chart.Bar, Columns: []string{"всего"}, Last: 14}},
		},
	},
	{
		Slug:  "demographics",
		Title: "Демография",
		Figures: []Figure{
			area("Распределение случаев по роду деятельности", "воспитанники/учащиеся", "работающие", "служащие", "неработающие и самозанятые", "пенсионеры"),
			area("Распределение случаев по полу", "мужчины", "женщины"),
			area("Распределение по источнику заражения", "завозные", "контактные", "не установлены"),
		},
	},
}

func findPage(slug string) (Page, bool) {
	for _, p := range Pages {
		if p.Slug == slug {
			return p, true
		}
	}
	return Page{}, false
}
