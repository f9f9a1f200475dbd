package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// Result 记录单次请求的 HTTP 结果，便于聚合统计。
type Result struct {
	Status int
	Body   string
	Err    error
}

func main() {
	baseURL := flag.String("base", "http://localhost:8080", "server base url")
	adminID := flag.Uint("admin", 1, "admin user id")
	stock := flag.Int64("stock", 5, "initial on-hand quantity for the test product")

	// 超卖测试参数：默认 200 个用户并发抢 5 件
	nUsers := flag.Int("users", 200, "distinct users")
	concurrency := flag.Int("c", 50, "max concurrency")
	flag.Parse()

	client := &http.Client{Timeout: 5 * time.Second}

	// 1) 准备阶段：管理员建一个测试商品（带初始库存）和 N 个买家账号
	productID, err := createProduct(client, *baseURL, *adminID, *stock)
	if err != nil {
		panic(fmt.Sprintf("create product failed: %v", err))
	}
	userIDs, err := createUsers(client, *baseURL, *adminID, *nUsers)
	if err != nil {
		panic(fmt.Sprintf("create users failed: %v", err))
	}
	fmt.Printf("seeded product=%d stock=%d users=%d\n", productID, *stock, len(userIDs))

	// 2) 不超卖测试：不同用户并发建单，各预占 1 件
	fmt.Printf("start oversell test: product=%d users=%d concurrency=%d\n", productID, *nUsers, *concurrency)
	results := runCreate(client, *baseURL, productID, userIDs, *concurrency)
	printSummary("oversell", results)

	onHand, reserved, available, err := getStock(client, *baseURL, *adminID, productID)
	if err != nil {
		fmt.Println("stock check err:", err)
	} else {
		fmt.Printf("final stock: on_hand=%d reserved=%d available=%d\n", onHand, reserved, available)
		if available < 0 || reserved > onHand {
			fmt.Println("!!! oversell detected")
		}
	}

	// 3) 限流测试：同一个用户重复建单（更容易触发 429）
	fmt.Println("\nstart rate limit test: same user, 50 requests, concurrency 50")
	sameUser := make([]uint, 50)
	for i := range sameUser {
		sameUser[i] = userIDs[0]
	}
	results2 := runCreate(client, *baseURL, productID, sameUser, 50)
	printSummary("rate_limit", results2)
}

func runCreate(client *http.Client, baseURL string, productID uint, userIDs []uint, concurrency int) []Result {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	results := make([]Result, len(userIDs))

	for i, uid := range userIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, userID uint) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = createOrderOnce(client, baseURL, productID, userID)
		}(i, uid)
	}

	wg.Wait()
	return results
}

func createOrderOnce(client *http.Client, baseURL string, productID, userID uint) Result {
	body := map[string]any{
		"currency": "USD",
		"items": []map[string]any{
			{"item_type": "product", "product_id": productID, "quantity": 1},
		},
	}
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, baseURL+"/api/orders", bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", fmt.Sprint(userID))

	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	return Result{Status: resp.StatusCode, Body: string(respBody)}
}

func createProduct(client *http.Client, baseURL string, adminID uint, stock int64) (uint, error) {
	payload := map[string]any{
		"name":    fmt.Sprintf("loadtest-%d", time.Now().Unix()),
		"price":   "9.99",
		"on_hand": stock,
	}
	var out struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	if err := doPOST(client, baseURL+"/api/products", adminID, payload, &out); err != nil {
		return 0, err
	}
	return out.Data.ID, nil
}

func createUsers(client *http.Client, baseURL string, adminID uint, n int) ([]uint, error) {
	ids := make([]uint, 0, n)
	for i := 0; i < n; i++ {
		payload := map[string]any{
			"name": fmt.Sprintf("buyer-%d-%d", time.Now().Unix(), i),
			"role": "customer",
		}
		var out struct {
			Data struct {
				ID uint `json:"id"`
			} `json:"data"`
		}
		if err := doPOST(client, baseURL+"/api/users", adminID, payload, &out); err != nil {
			return nil, err
		}
		ids = append(ids, out.Data.ID)
	}
	return ids, nil
}

// printSummary 聚合输出不同状态码分布。
func printSummary(name string, results []Result) {
	count := map[int]int{}
	errCount := 0
	for _, r := range results {
		if r.Err != nil {
			errCount++
			continue
		}
		count[r.Status]++
	}
	fmt.Printf("[%s] http status summary:\n", name)
	for _, code := range []int{200, 400, 403, 404, 409, 429, 500} {
		if count[code] > 0 {
			fmt.Printf("  %d -> %d\n", code, count[code])
		}
	}
	if errCount > 0 {
		fmt.Printf("  errors -> %d\n", errCount)
	}
}

// doPOST 以指定用户身份发送 POST 请求，可选解析响应。
func doPOST(client *http.Client, url string, userID uint, body any, out any) error {
	b, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", fmt.Sprint(userID))

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

// getStock 压测后查库存，校验是否出现超卖。
func getStock(client *http.Client, baseURL string, adminID uint, productID uint) (onHand, reserved, available int64, err error) {
	req, _ := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/api/products/%d/stock", baseURL, productID), nil)
	req.Header.Set("X-User-ID", fmt.Sprint(adminID))
	resp, err := client.Do(req)
	if err != nil {
		return 0, 0, 0, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return 0, 0, 0, fmt.Errorf("status=%d body=%s", resp.StatusCode, string(b))
	}

	var out struct {
		Data struct {
			OnHand    int64 `json:"on_hand"`
			Reserved  int64 `json:"reserved"`
			Available int64 `json:"available"`
		} `json:"data"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return 0, 0, 0, err
	}
	return out.Data.OnHand, out.Data.Reserved, out.Data.Available, nil
}
