package htmlutil

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

const fragment = `<div id="card">
	Дисциплина:&nbsp;<b>Физика</b>
	<span class="label">Оценка</span> 5 (отлично)
	<a href="/tasks/12">Задание  1</a>
	<a href="https://lms.guap.ru/file">Файл</a>
	<a href="#">пусто</a>
</div>`

func parse(t *testing.T) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	require.NoError(t, err)
	return doc
}

func TestClean(t *testing.T) {
	require.Equal(t, "a b c", Clean("  a \n\tb   c "))
	require.Equal(t, "", Clean(" \n "))
}

func TestTextHelpers(t *testing.T) {
	doc := parse(t)
	card := doc.Find("#card")

	require.Equal(t, "Дисциплина:", LeadingText(card))
	require.Equal(t, "5 (отлично)", FollowingText(card.Find(".label")))
	require.Equal(t, "Задание 1", Text(card.Find("a")))
	require.Equal(t, "", Text(card.Find("table")))
	require.Equal(t, "", OwnText(card.Find("table")))
	require.Contains(t, OwnText(card), "Дисциплина:")
	require.NotContains(t, OwnText(card), "Физика")
}

func TestAbsURL(t *testing.T) {
	base, err := url.Parse("https://pro.guap.ru/inside/student/tasks/")
	require.NoError(t, err)

	tests := []struct {
		href     string
		expected string
	}{
		{href: "/tasks/12", expected: "https://pro.guap.ru/tasks/12"},
		{href: "view?id=3", expected: "https://pro.guap.ru/inside/student/tasks/view?id=3"},
		{href: " https://lms.guap.ru/file ", expected: "https://lms.guap.ru/file"},
		{href: "#", expected: ""},
		{href: "", expected: ""},
		{href: "javascript:void(0)", expected: ""},
	}
	for _, test := range tests {
		t.Run(test.href, func(t *testing.T) {
			require.Equal(t, test.expected, AbsURL(base, test.href))
		})
	}
}

func TestGetAnchors(t *testing.T) {
	base, err := url.Parse("https://pro.guap.ru/")
	require.NoError(t, err)

	anchors := GetAnchors(context.Background(), base, parse(t).Find("a"))
	expected := []Anchor{
		{Name: "Задание 1", Href: "https://pro.guap.ru/tasks/12"},
		{Name: "Файл", Href: "https://lms.guap.ru/file"},
		{Name: "пусто", Href: ""},
	}
	diff := cmp.Diff(expected, anchors)
	if diff != "" {
		t.Fatal(diff)
	}
	require.Equal(t, "https://pro.guap.ru/tasks/12", Href(base, parse(t).Find("a")))
}
