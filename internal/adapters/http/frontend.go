package http

import (
	"net/http"
)

// frontendHTML is the embedded HTML for the summary browser.
// Mobile-first, responsive design with pure CSS.
const frontendHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Strata - Dataset Summaries</title>
    <style>
        :root {
            --primary: #2563eb;
            --primary-dark: #1d4ed8;
            --success: #16a34a;
            --error: #dc2626;
            --bg: #f8fafc;
            --card: #ffffff;
            --text: #1e293b;
            --text-muted: #64748b;
            --border: #e2e8f0;
            --radius: 8px;
            --shadow: 0 1px 3px rgba(0,0,0,0.1);
        }

        * {
            box-sizing: border-box;
            margin: 0;
            padding: 0;
        }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: var(--bg);
            color: var(--text);
            line-height: 1.5;
            min-height: 100vh;
        }

        .container {
            max-width: 960px;
            margin: 0 auto;
            padding: 1rem;
        }

        header {
            text-align: center;
            padding: 1.5rem 0;
            border-bottom: 1px solid var(--border);
            margin-bottom: 1.5rem;
        }

        header h1 {
            font-size: 1.5rem;
            font-weight: 600;
        }

        header p {
            color: var(--text-muted);
            font-size: 0.9rem;
        }

        .card {
            background: var(--card);
            border: 1px solid var(--border);
            border-radius: var(--radius);
            box-shadow: var(--shadow);
            padding: 1rem;
            margin-bottom: 1rem;
        }

        .product-header {
            display: flex;
            justify-content: space-between;
            align-items: baseline;
            cursor: pointer;
        }

        .product-header h2 {
            font-size: 1.1rem;
            font-weight: 600;
        }

        .product-header .count {
            color: var(--text-muted);
            font-size: 0.85rem;
        }

        .product-detail {
            display: none;
            margin-top: 0.75rem;
            border-top: 1px solid var(--border);
            padding-top: 0.75rem;
        }

        .product-detail.open {
            display: block;
        }

        dl {
            display: grid;
            grid-template-columns: max-content 1fr;
            gap: 0.25rem 1rem;
            font-size: 0.9rem;
        }

        dt {
            color: var(--text-muted);
        }

        .timeline {
            display: flex;
            align-items: flex-end;
            gap: 2px;
            height: 64px;
            margin-top: 0.75rem;
        }

        .timeline .bar {
            flex: 1;
            min-width: 2px;
            background: var(--primary);
            border-radius: 2px 2px 0 0;
        }

        .error {
            color: var(--error);
            font-size: 0.9rem;
        }

        footer {
            text-align: center;
            color: var(--text-muted);
            font-size: 0.8rem;
            padding: 1rem 0;
        }

        footer a {
            color: var(--primary);
        }
    </style>
</head>
<body>
    <div class="container">
        <header>
            <h1>Strata</h1>
            <p>Dataset summaries by product and time period</p>
        </header>

        <div id="error" class="error" style="display:none"></div>
        <div id="products"></div>

        <footer>
            <a href="/docs">API documentation</a> &middot;
            <a href="/openapi.json">OpenAPI spec</a>
        </footer>
    </div>

    <script>
        const productsEl = document.getElementById('products');
        const errorEl = document.getElementById('error');

        function showError(message) {
            errorEl.textContent = message;
            errorEl.style.display = 'block';
        }

        function escapeHtml(str) {
            const div = document.createElement('div');
            div.textContent = String(str);
            return div.innerHTML;
        }

        function renderProduct(p) {
            let range = '';
            if (p.time_range) {
                range = p.time_range.begin.slice(0, 10) + ' to ' + p.time_range.end.slice(0, 10);
            }
            return '<div class="card" data-product="' + escapeHtml(p.name) + '">' +
                '<div class="product-header">' +
                '<h2>' + escapeHtml(p.name) + '</h2>' +
                '<span class="count">' + p.dataset_count + ' datasets</span>' +
                '</div>' +
                '<div class="product-detail">' +
                '<dl>' +
                '<dt>Description</dt><dd>' + escapeHtml(p.description || '-') + '</dd>' +
                '<dt>Grid</dt><dd>' + escapeHtml(p.grid) + '</dd>' +
                '<dt>Time range</dt><dd>' + escapeHtml(range || '-') + '</dd>' +
                '<dt>Stored periods</dt><dd>' + p.periods + '</dd>' +
                '</dl>' +
                '<div class="timeline"></div>' +
                '</div>' +
                '</div>';
        }

        function renderTimeline(card, overview) {
            const el = card.querySelector('.timeline');
            const counts = overview.timeline && overview.timeline.counts || {};
            const keys = Object.keys(counts).sort();
            if (keys.length === 0) {
                el.style.display = 'none';
                return;
            }
            const max = Math.max(...keys.map(k => counts[k]));
            el.innerHTML = keys.map(function(k) {
                const h = Math.max(4, Math.round(counts[k] / max * 60));
                return '<div class="bar" style="height:' + h + 'px" title="' +
                    escapeHtml(k) + ': ' + counts[k] + '"></div>';
            }).join('');
        }

        async function loadOverview(card) {
            const name = card.dataset.product;
            try {
                const response = await fetch('/api/v1/products/' + encodeURIComponent(name) + '/overview');
                if (!response.ok) {
                    return;
                }
                renderTimeline(card, await response.json());
            } catch (err) {
                // Leave the timeline empty on failure
            }
        }

        async function loadProducts() {
            try {
                const response = await fetch('/api/v1/products');
                if (!response.ok) {
                    showError('Failed to load products (HTTP ' + response.status + ')');
                    return;
                }
                const data = await response.json();
                if (!data.products || data.products.length === 0) {
                    productsEl.innerHTML = '<div class="card">No products registered yet.</div>';
                    return;
                }
                productsEl.innerHTML = data.products.map(renderProduct).join('');

                document.querySelectorAll('.product-header').forEach(function(header) {
                    header.addEventListener('click', function() {
                        const card = header.closest('.card');
                        const detail = card.querySelector('.product-detail');
                        detail.classList.toggle('open');
                        if (detail.classList.contains('open')) {
                            loadOverview(card);
                        }
                    });
                });
            } catch (err) {
                showError('Failed to load products: ' + err.message);
            }
        }

        loadProducts();
    </script>
</body>
</html>`

// swaggerHTML embeds Swagger UI from CDN, pointed at the served spec.
const swaggerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Strata API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            SwaggerUIBundle({
                url: '/openapi.json',
                dom_id: '#swagger-ui',
                presets: [SwaggerUIBundle.presets.apis],
                layout: 'BaseLayout'
            });
        };
    </script>
</body>
</html>`

// handleFrontend serves the embedded summary browser.
func (s *Server) handleFrontend(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(frontendHTML))
}

// handleSwaggerUI serves the Swagger UI page.
func (s *Server) handleSwaggerUI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(swaggerHTML))
}
