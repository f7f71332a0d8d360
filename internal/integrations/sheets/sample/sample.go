package sample

import (
	"context"
	"strings"

	"github.com/BearBump/CargoLedger/internal/integrations/sheets"
)

const Title = "샘플 데이터"

// Client отдаёт фиксированную демо-таблицу на url "test" или "sample",
// остальные запросы уходят в next.
type Client struct {
	next sheets.Client
}

func Wrap(next sheets.Client) *Client { return &Client{next: next} }

func IsSampleURL(url string) bool {
	u := strings.ToLower(strings.TrimSpace(url))
	return u == "test" || u == "sample"
}

func (c *Client) Fetch(ctx context.Context, url string) (sheets.Table, error) {
	if IsSampleURL(url) || c.next == nil {
		return Table(), nil
	}
	return c.next.Fetch(ctx, url)
}

func Table() sheets.Table {
	return sheets.FromValues(Title, [][]string{
		{"일시", "원청", "차량번호", "기사명", "상차지", "하차지", "금액"},
		{"2023-09-15", "신성통운", "12가1234", "홍길동", "서울", "부산", "300000"},
		{"2023-09-16", "신성통운", "54나5678", "김철수", "인천", "광주", "250000"},
		{"2023-09-17", "신성통운", "33다9876", "이영희", "대전", "대구", "200000"},
	})
}
