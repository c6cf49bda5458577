package live

import (
	"html/template"
	"net/http"
)

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; margin: 2rem; }
#items li { padding: 2px 0; transition: background 0.4s; }
#items li.touched { background: #fff3b0; }
#status { color: #888; font-size: 0.9em; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p id="status">connecting…</p>
<ul id="items"></ul>
<script>
(function() {
    'use strict';

    var list = document.getElementById('items');
    var status = document.getElementById('status');
    var nodes = {};
    var seq = 0;
    var reconnectDelay = 1000;

    function node(key) {
        var li = nodes[key];
        if (!li) {
            li = document.createElement('li');
            li.textContent = key;
            nodes[key] = li;
        }
        return li;
    }

    function touch(li) {
        li.classList.add('touched');
        setTimeout(function() { li.classList.remove('touched'); }, 400);
    }

    function reset(items) {
        list.textContent = '';
        nodes = {};
        items.forEach(function(key) { list.appendChild(node(key)); });
    }

    function apply(msg) {
        (msg.removed || []).forEach(function(key) {
            if (nodes[key]) {
                nodes[key].remove();
                delete nodes[key];
            }
        });
        (msg.ops || []).forEach(function(op) {
            var frag = document.createDocumentFragment();
            op.keys.forEach(function(key) {
                var li = node(key);
                touch(li);
                frag.appendChild(li);
            });
            if (op.atEnd) {
                list.appendChild(frag);
            } else {
                list.insertBefore(frag, nodes[op.before]);
            }
        });
    }

    function connect() {
        var protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
        var ws = new WebSocket(protocol + '//' + location.host + {{.Path}});

        ws.onopen = function() {
            reconnectDelay = 1000;
        };

        ws.onmessage = function(e) {
            var msg;
            try {
                msg = JSON.parse(e.data);
            } catch (err) {
                return;
            }
            if (msg.type === 'reset') {
                reset(msg.items || []);
            } else if (msg.type === 'ops') {
                if (msg.seq !== seq + 1) {
                    ws.close();
                    return;
                }
                apply(msg);
            }
            seq = msg.seq;
            status.textContent = 'seq ' + seq;
        };

        ws.onclose = function() {
            status.textContent = 'disconnected, retrying…';
            setTimeout(function() {
                reconnectDelay = Math.min(reconnectDelay * 2, 30000);
                connect();
            }, reconnectDelay);
        };
    }

    connect();
})();
</script>
</body>
</html>
`))

// Page returns a handler serving a minimal HTML client for a feed mounted
// at wsPath.
func Page(title, wsPath string) http.Handler {
	data := struct {
		Title string
		Path  string
	}{title, wsPath}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := pageTemplate.Execute(w, data); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
