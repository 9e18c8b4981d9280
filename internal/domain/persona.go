package domain

// Persona описывает стиль общения.
type Persona string

const (
	PersonaPodcaster         Persona = "Podcaster"
	PersonaStickerEnthusiast Persona = "StickerEnthusiast"
	PersonaPaparazzi         Persona = "Paparazzi"
	PersonaStoryteller       Persona = "Storyteller"
	PersonaTexter            Persona = "Texter"
)

// Personas перечисляет все допустимые метки.
var Personas = []Persona{
	PersonaPodcaster,
	PersonaStickerEnthusiast,
	PersonaPaparazzi,
	PersonaStoryteller,
	PersonaTexter,
}

// Valid сообщает, входит ли метка в закрытый набор.
func (p Persona) Valid() bool {
	for _, known := range Personas {
		if p == known {
			return true
		}
	}
	return false
}

type personaRule struct {
	persona Persona
	match   func(d ContentTypeDistribution, premium bool) bool
}

// Порядок важен: срабатывает первое совпадение.
// Доли задаются относительно текста: count*den >= text*num.
var personaRules = []personaRule{
	{PersonaPodcaster, func(d ContentTypeDistribution, _ bool) bool {
		return d.Voice > 0 && d.Voice*5 >= d.Text*3
	}},
	{PersonaStickerEnthusiast, func(d ContentTypeDistribution, _ bool) bool {
		return d.Sticker > 0 && d.Sticker*2 >= d.Text
	}},
	{PersonaPaparazzi, func(d ContentTypeDistribution, _ bool) bool {
		return d.Photo > 0 && d.Photo*10 >= d.Text*3
	}},
	{PersonaStoryteller, func(d ContentTypeDistribution, premium bool) bool {
		if d.Video == 0 {
			return false
		}
		// премиум-аккаунты записывают более длинные кружки, порог ниже
		if premium {
			return d.Video*20 >= d.Text*3
		}
		return d.Video*4 >= d.Text
	}},
}

// ClassifyPersona выводит персону из распределения типов контента.
// Используется и для синтезированных, и для агрегированных профилей.
// Пороги задают долю относительно текста, а не строгое превосходство:
// голосовых от 60% текста (Podcaster), стикеров от 50%, фото от 30%,
// видео от 25% (от 15% для премиум-аккаунтов). Например, {Text: 10, Voice: 6} даёт Podcaster.
func ClassifyPersona(d ContentTypeDistribution, premium bool) Persona {
	for _, rule := range personaRules {
		if rule.match(d, premium) {
			return rule.persona
		}
	}
	return PersonaTexter
}
